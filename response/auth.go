package response

type UserAuthResponse struct {
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
	Token  string `json:"token"`
}
