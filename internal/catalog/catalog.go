// Package catalog lists the video models exposed to clients.
package catalog

// VideoModel describes a video model and the options it accepts.
type VideoModel struct {
	ID                      string   `json:"id"`
	Name                    string   `json:"name"`
	Description             string   `json:"description"`
	MaxDuration             int      `json:"maxDuration"`
	SupportedResolutions    []string `json:"supportedResolutions"`
	SupportedAspectRatios   []string `json:"supportedAspectRatios"`
	SupportedAspectDuration []string `json:"supportedAspectDuration"`
}

// VideoModels returns a fresh copy of the supported video models.
func VideoModels() []VideoModel {
	return []VideoModel{
		{
			ID:                      "veo3.1-fast",
			Name:                    "Veo 3.1 Fast",
			Description:             "Google Veo 3.1 Fast - High quality video generation with text-to-video and image-to-video support",
			MaxDuration:             8,
			SupportedResolutions:    []string{"720p", "1080p"},
			SupportedAspectRatios:   []string{"16:9", "9:16", "auto"},
			SupportedAspectDuration: []string{},
		},
	}
}
