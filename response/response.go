package response

// Response 统一响应结构
type Response struct {
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}
