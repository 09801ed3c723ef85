package models

// RemoteFolder represents a folder (or label) from the provider API
type RemoteFolder struct {
	ID           string   `json:"id"`
	GrantID      string   `json:"grant_id"`
	Name         string   `json:"name"`
	ParentID     string   `json:"parent_id,omitempty"`
	Attributes   []string `json:"attributes,omitempty"`
	ChildCount   int      `json:"child_count"`
	SystemFolder bool     `json:"system_folder"`
}
