package pumpfun

import (
	"strings"

	"pumpkit/internal/command"
)

// DefaultGateway prefixes bare IPFS content ids.
const DefaultGateway = "https://ipfs.io/ipfs/"

// ActionRequest is the create-coin payload. The authorisation token is sent
// twice: the service validates both slots independently.
type ActionRequest struct {
	CaptchaToken          string `json:"captchaToken"`
	VanityKeyCaptchaToken string `json:"vanityKeyCaptchaToken"`
	Name                  string `json:"name"`
	Ticker                string `json:"ticker"`
	Description           string `json:"description"`
	Twitter               string `json:"twitter"`
	Telegram              string `json:"telegram"`
	Website               string `json:"website"`
	ShowName              bool   `json:"showName"`
	MetadataURI           string `json:"metadataUri"`
	Image                 string `json:"image"`
}

// Builder assembles ActionRequests. The zero value uses DefaultGateway.
type Builder struct {
	gateway string
}

func NewBuilder(gateway string) Builder {
	return Builder{gateway: normalizeGateway(gateway)}
}

// Build is pure: the same command and token always produce the same request.
func (b Builder) Build(cmd command.ParsedCommand, token string) ActionRequest {
	imageURL := b.resolveImage(cmd.ImageRef)
	return ActionRequest{
		CaptchaToken:          token,
		VanityKeyCaptchaToken: token,
		Name:                  cmd.Name,
		Ticker:                cmd.Ticker,
		Description:           cmd.Description,
		ShowName:              true,
		MetadataURI:           imageURL,
		Image:                 imageURL,
	}
}

func (b Builder) resolveImage(ref string) string {
	ref = strings.TrimSpace(ref)
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return ref
	}
	gateway := b.gateway
	if gateway == "" {
		gateway = DefaultGateway
	}
	return gateway + strings.TrimPrefix(ref, "ipfs://")
}

func normalizeGateway(gateway string) string {
	gateway = strings.TrimSpace(gateway)
	if gateway == "" {
		return DefaultGateway
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	return gateway
}
