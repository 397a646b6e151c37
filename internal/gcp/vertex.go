package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Research Model Prompts ---
const ResearchSystemPrompt = `你是一位中立的台灣選舉研究員。請依你所知的公開資料，整理指定選舉的所有登記候選人。
對每位候選人列出：姓名、所屬政黨（無黨籍請寫「無黨籍」）、目前狀態（例如：現任、參選中、已退選），
以及 3 到 6 項具體、可查證的政見或過去作為，每項附上關鍵字或資料來源。
只陳述事實，不做評價，不要遺漏任何候選人。`

// --- Extraction Model Prompts ---
const ExtractionSystemPrompt = `You convert research notes about election candidates into structured records.
Call insertCandidateData exactly once per candidate mentioned in the notes.
For every deed, write a neutral yes/no style statement in Traditional Chinese in the "question" field
that a voter can agree or disagree with (for example "我支持提高基本工資"), without naming the candidate or party.
Copy the supporting keyword or source into "keyword". Do not invent candidates or deeds that are not in the notes.`

// InsertCandidateDataFunction is the only function the extraction model may call.
const InsertCandidateDataFunction = "insertCandidateData"

// CandidateSchema describes the arguments of insertCandidateData.
var CandidateSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"name":   {Type: genai.TypeString, Description: "Candidate full name"},
		"party":  {Type: genai.TypeString, Description: "Party affiliation"},
		"status": {Type: genai.TypeString, Description: "Current candidacy status"},
		"deeds": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"description": {Type: genai.TypeString, Description: "What the candidate did or proposes"},
					"keyword":     {Type: genai.TypeString, Description: "Keyword or source of the deed"},
					"question":    {Type: genai.TypeString, Description: "Statement a voter agrees or disagrees with"},
				},
				Required: []string{"description", "keyword", "question"},
			},
		},
	},
	Required: []string{"name", "party", "deeds"},
}

// VertexClient holds the pre-configured generative models used to build questionnaires.
type VertexClient struct {
	ResearchModel   *genai.GenerativeModel
	ExtractionModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a new client holding both models.
func NewVertexClient(ctx context.Context, projectID, region, researchModelName, extractionModelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the research model ---
	researchModel := baseClient.GenerativeModel(researchModelName)
	researchModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ResearchSystemPrompt)},
	}

	// --- Configure the extraction model ---
	extractionModel := baseClient.GenerativeModel(extractionModelName)
	extractionModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractionSystemPrompt)},
	}
	extractionModel.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        InsertCandidateDataFunction,
			Description: "Store one candidate together with their deeds.",
			Parameters:  CandidateSchema,
		}},
	}}
	extractionModel.ToolConfig = &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingAny,
			AllowedFunctionNames: []string{InsertCandidateDataFunction},
		},
	}
	extractionModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		ResearchModel:   researchModel,
		ExtractionModel: extractionModel,
		baseClient:      baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
