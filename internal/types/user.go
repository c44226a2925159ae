package types

import "github.com/brentcodes/clamped/internal/models"

type UserResponse struct {
	ID        uint              `json:"id"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Email     string            `json:"email"`
	Role      models.GlobalRole `json:"role"`
}
