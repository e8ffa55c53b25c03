package model

// Category is a node of the catalog's category tree. ParentID is empty for roots.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Handle   string `json:"handle"`
	ParentID string `json:"parent_id,omitempty"`
}

// CategoryExtension is the side record holding a category's source identity.
// Its dedup key (ExternalID if set, else SourceKey) is unique per parent.
type CategoryExtension struct {
	ID             string `json:"id"`
	CategoryID     string `json:"category_id"`
	ParentID       string `json:"parent_id,omitempty"`
	SourceName     string `json:"source_name"`
	SourceKey      string `json:"source_key"`
	ExternalID     string `json:"external_id,omitempty"`
	SEODescription string `json:"seo_description,omitempty"`
}

// DedupKey returns the identity used to match this extension across runs.
func (e *CategoryExtension) DedupKey() string {
	if e.ExternalID != "" {
		return "id:" + e.ExternalID
	}
	return "name:" + e.SourceKey
}
