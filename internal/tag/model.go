package tag

type Tag struct {
	ID      string `json:"id"`
	OwnerID string `json:"-"`
	Name    string `json:"name"`
}
