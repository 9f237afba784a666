package response

type ChatResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`

	// 是否由缓存直接返回
	Cached bool `json:"cached"`
}
