package dto

import "github.com/hongminglow/userhub/internal/models"

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type RegisterResponse struct {
	Token *string              `json:"token"`
	User  *models.UserResponse `json:"user"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string              `json:"token"`
	User  models.UserResponse `json:"user"`
}

type UpdateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type UpdatePasswordRequest struct {
	Password string `json:"password"`
}

type DeleteUserResponse struct {
	Deleted int64 `json:"deleted"`
}

type ConfigInfo struct {
	DatabaseURL  string `json:"database_url"`
	RabbitMQURL  string `json:"rabbitmq_url"`
	AppAddress   string `json:"app_address"`
	AppPort      string `json:"app_port"`
	StorageMode  string `json:"storage_driver"`
	EventsTarget string `json:"events_exchange"`
}
