package tools

import (
	"context"
	"fmt"
	"net/url"
)

// AnalyzeImageName is the tool name exposed to the model.
const AnalyzeImageName = "analyze_image"

type analyzeImageArgs struct {
	ImageURL string `json:"image_url" jsonschema:"http(s) URL of a chart screenshot or other image"`
	Focus    string `json:"focus,omitempty" jsonschema:"what to look for in the image"`
}

// NewAnalyzeImage creates the analyze_image tool. It hands the image back
// as a marker so the model inspects it directly.
func NewAnalyzeImage() (Tool, error) {
	return newTool(AnalyzeImageName,
		"Load an image from a URL (chart screenshot, broker statement) so you can look at it.",
		nil,
		func(_ context.Context, a analyzeImageArgs, _ Context) Result {
			u, err := url.Parse(a.ImageURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return Failure("image_url must be an absolute http(s) URL")
			}
			text := "Image loaded for analysis."
			if a.Focus != "" {
				text = fmt.Sprintf("Image loaded for analysis. Focus: %s", a.Focus)
			}
			return Result{Text: text, ImageURL: u.String()}
		})
}
