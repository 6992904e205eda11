package dto

// WorkshopDTO describes a workshop offered by at least one accessible portal.
type WorkshopDTO struct {
	Name        string            `json:"name"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Labels      map[string]string `json:"labels"`
}

// WorkshopListDTO is the body of a workshop listing.
type WorkshopListDTO struct {
	Workshops []WorkshopDTO `json:"workshops"`
}

// LoginRequestDTO carries client credentials.
type LoginRequestDTO struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponseDTO carries an issued access token.
type LoginResponseDTO struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}
