package domain

import "time"

// Asset artifact types.
const (
	ArtifactTypeText  = "text"
	ArtifactTypeImage = "image"
	ArtifactTypeVideo = "video"
)

// AssetContent is the artifact payload, variant by ArtifactType: Text holds
// plain copy, ImageURL/VideoURL hold a provider-hosted asset reference.
type AssetContent struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// AssetRecord is one generated campaign asset. The store enforces
// exactly-once per (JobID, FormatID, ChannelID) by keying the document
// collection on that triple.
type AssetRecord struct {
	AssetID      string       `json:"assetId"`
	JobID        string       `json:"jobId"`
	FormatID     string       `json:"formatId"`
	ChannelID    string       `json:"channelId"`
	ArtifactType string       `json:"artifactType"`
	Status       string       `json:"status"`
	Content      AssetContent `json:"content"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// AssetKey builds the exactly-once identity key for an asset document.
func AssetKey(jobID, formatID, channelID string) string {
	return jobID + "/" + formatID + "/" + channelID
}
