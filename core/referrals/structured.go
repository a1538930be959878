package referrals

import (
	"context"

	"github.com/koscakluka/ema-referrals/core/llms"
	"github.com/koscakluka/ema-referrals/core/llms/groq"
)

const extractionInstructions = "Extract referral partners from the assistant answer. " +
	"networkPartners are partners already in the user's network, with their company when given. " +
	"externalPartners are partners outside the network. Return empty lists when there are none."

type extractedPartner struct {
	Name    string `json:"name" jsonschema:"required"`
	Company string `json:"company" jsonschema:"required"`
}

type extractedPartners struct {
	NetworkPartners  []extractedPartner `json:"networkPartners" jsonschema:"required"`
	ExternalPartners []extractedPartner `json:"externalPartners" jsonschema:"required"`
}

// GroqExtractor extracts partners with a JSON schema constrained Groq
// completion.
type GroqExtractor struct {
	client *groq.Client
}

func NewGroqExtractor(client *groq.Client) *GroqExtractor {
	return &GroqExtractor{client: client}
}

func (e *GroqExtractor) Extract(ctx context.Context, text string) (*Data, error) {
	if e == nil || e.client == nil || !e.client.HasAPIKey() {
		return nil, llms.ErrMissingAPIKey
	}

	output, err := groq.PromptJSONSchema[extractedPartners](ctx, e.client, text,
		llms.WithInstructions(extractionInstructions),
		llms.WithTemperature(0),
	)
	if err != nil {
		return nil, err
	}

	data := &Data{NetworkPartners: []Partner{}, ExternalPartners: []Partner{}}
	for _, partner := range output.NetworkPartners {
		data.NetworkPartners = append(data.NetworkPartners, Partner{Name: partner.Name, Company: partner.Company})
	}
	for _, partner := range output.ExternalPartners {
		data.ExternalPartners = append(data.ExternalPartners, Partner{Name: partner.Name})
	}
	return data, nil
}
