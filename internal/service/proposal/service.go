package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/fallback"
	"siecore/apps/console/internal/runner"
)

var ErrEmptyPrompt = errors.New("proposal_prompt_required")

// fencedReply matches a reply that is one fenced block from start to end, so
// fences inside JSON string values are left alone.
var fencedReply = regexp.MustCompile("(?s)^```(?:json|JSON)?\\s*(.*?)\\s*```\\s*$")

type CredentialSource interface {
	ActiveOrderedByPriority(ctx context.Context) ([]domain.Credential, error)
}

type Dependencies struct {
	Credentials CredentialSource
	Executor    *fallback.Executor
	Driver      runner.Driver
}

// Service turns an operator request into a structured Proposal by cascading
// over the active credentials.
type Service struct {
	deps Dependencies
}

func NewService(deps Dependencies) *Service {
	return &Service{deps: deps}
}

// Generate never fails: provider exhaustion and unparseable replies both
// degrade to an EXPLAIN proposal carrying the reason.
func (s *Service) Generate(ctx context.Context, request string, file FileContext) domain.Proposal {
	if strings.TrimSpace(request) == "" {
		return explain("Nothing to do: the request is empty.")
	}
	candidates, err := s.deps.Credentials.ActiveOrderedByPriority(ctx)
	if err != nil {
		log.Printf("proposal credential lookup failed err=%v", err)
		return explain("CRITICAL FAILURE: could not load AI credentials. " + err.Error())
	}

	prompt := runner.Prompt{System: systemInstruction, User: buildUserPrompt(request, file)}
	reply, err := fallback.Execute(ctx, s.deps.Executor, candidates, func(ctx context.Context, cred domain.Credential) (string, error) {
		return s.deps.Driver.Generate(ctx, cred, prompt)
	})
	if err != nil {
		log.Printf("proposal generation failed err=%v", err)
		return exhaustedProposal(err)
	}

	proposal, err := ParseProposal(reply)
	if err != nil {
		log.Printf("proposal reply malformed err=%v", err)
		return explain(fmt.Sprintf("MALFORMED RESPONSE: the AI reply could not be read as a proposal (%v).", err))
	}
	return proposal
}

func exhaustedProposal(err error) domain.Proposal {
	if !errors.Is(err, fallback.ErrCredentialExhausted) {
		return explain("CRITICAL FAILURE: AI request aborted. " + err.Error())
	}
	var exhausted *fallback.ExhaustedError
	if errors.As(err, &exhausted) && exhausted.LastErr != nil {
		return explain(fmt.Sprintf("CRITICAL FAILURE: all AI providers failed. Check the key manager. Last error: %v", exhausted.LastErr))
	}
	return explain("CRITICAL FAILURE: all AI providers failed. No active AI keys are configured.")
}

// ParseProposal extracts the JSON object from a model reply (tolerating
// code fences and surrounding prose) and decodes it.
func ParseProposal(reply string) (domain.Proposal, error) {
	payload := ExtractJSON(reply)
	if payload == "" {
		return domain.Proposal{}, errors.New("reply contains no JSON object")
	}
	var proposal domain.Proposal
	if err := json.Unmarshal([]byte(payload), &proposal); err != nil {
		return domain.Proposal{}, err
	}
	return proposal, nil
}

func ExtractJSON(reply string) string {
	text := strings.TrimSpace(reply)
	if isObject(text) {
		return text
	}
	if m := fencedReply.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
		if isObject(text) {
			return text
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func isObject(text string) bool {
	return strings.HasPrefix(text, "{") && json.Valid([]byte(text))
}

func explain(message string) domain.Proposal {
	return domain.Proposal{Action: domain.ExplainAction{}, Message: message}
}
