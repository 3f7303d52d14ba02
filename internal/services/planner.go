package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

// ErrPlanInvalid marks a planner response that could not be used: malformed
// JSON, wrong scene count, or missing prompts. Planning never returns a
// partial plan — callers must not proceed to later stages on this error.
var ErrPlanInvalid = errors.New("scene plan invalid")

const plannerModel = "gpt-5-mini"

type PlannerService struct {
	client *openai.Client
}

func NewPlannerService(apiKey string) *PlannerService {
	return &PlannerService{
		client: openai.NewClient(apiKey),
	}
}

// ScenePlan is a single scene descriptor in the generated plan.
type ScenePlan struct {
	SceneNumber int    `json:"scene_number"`
	Prompt      string `json:"prompt"`
	ImagePrompt string `json:"image_prompt"`
	VideoPrompt string `json:"video_prompt"`
}

// StoryPlan is the complete plan: the recurring main subject plus an ordered
// list of exactly the requested number of scenes.
type StoryPlan struct {
	MainSubject string      `json:"main_subject"`
	Scenes      []ScenePlan `json:"scenes"`
}

// PlanScenes turns a free-text prompt into an ordered list of exactly
// sceneCount scene descriptors using OpenAI structured output (JSON mode).
// Any parse or shape failure returns ErrPlanInvalid.
func (s *PlannerService) PlanScenes(ctx context.Context, prompt string, sceneCount int) (*StoryPlan, error) {
	systemPrompt := buildPlanSystemPrompt(sceneCount)
	userPrompt := fmt.Sprintf("Create a %d-scene visual story for the prompt: %q", sceneCount, prompt)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: plannerModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})

	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from openai", ErrPlanInvalid)
	}

	rawContent := resp.Choices[0].Message.Content
	const maxLogLen = 2000

	var plan StoryPlan
	if err := json.Unmarshal([]byte(rawContent), &plan); err != nil {
		log.Printf("[Planner] parse failed: %v", err)
		if len(rawContent) > maxLogLen {
			log.Printf("[Planner] raw response (truncated): %s...", rawContent[:maxLogLen])
		} else {
			log.Printf("[Planner] raw response: %s", rawContent)
		}
		return nil, fmt.Errorf("%w: %v", ErrPlanInvalid, err)
	}

	if err := ValidatePlan(&plan, sceneCount); err != nil {
		log.Printf("[Planner] validation failed: %v", err)
		if len(rawContent) > maxLogLen {
			log.Printf("[Planner] raw response (truncated): %s...", rawContent[:maxLogLen])
		} else {
			log.Printf("[Planner] raw response: %s", rawContent)
		}
		return nil, err
	}

	log.Printf("[Planner] plan generated: %d scenes, subject=%q", len(plan.Scenes), plan.MainSubject)

	return &plan, nil
}

// ValidatePlan enforces the planner's output contract: exactly sceneCount
// scenes, each with a non-empty image prompt, numbered 1..N in order.
// Scene numbers missing from the response are filled in from position.
func ValidatePlan(plan *StoryPlan, sceneCount int) error {
	if len(plan.Scenes) != sceneCount {
		return fmt.Errorf("%w: expected %d scenes, got %d", ErrPlanInvalid, sceneCount, len(plan.Scenes))
	}

	for i := range plan.Scenes {
		scene := &plan.Scenes[i]

		if scene.SceneNumber == 0 {
			scene.SceneNumber = i + 1
		}
		if scene.SceneNumber != i+1 {
			return fmt.Errorf("%w: scene at position %d numbered %d", ErrPlanInvalid, i+1, scene.SceneNumber)
		}

		var missing []string
		if scene.Prompt == "" {
			missing = append(missing, "prompt")
		}
		if scene.ImagePrompt == "" {
			missing = append(missing, "image_prompt")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: scene %d missing required fields: %v", ErrPlanInvalid, i+1, missing)
		}
	}

	return nil
}

func buildPlanSystemPrompt(sceneCount int) string {
	return fmt.Sprintf(`You are a visual storyteller planning a short generated video as a sequence of scenes.

Your task: break the user's prompt into EXACTLY %d scenes that together tell one continuous story.

CONSISTENT MAIN SUBJECT - CRITICAL:
Decide on ONE main subject (character, creature, or object) and describe it identically in every scene. Every image_prompt and video_prompt must repeat the same concrete description of the subject (appearance, colors, distinguishing details) so that independently generated frames depict the same subject. Put the canonical description in the top-level main_subject field.

Per scene, ALL fields are required:
- scene_number: 1-based position (1, 2, 3, ...).
- prompt: one or two sentences of narrative — what happens in this beat of the story.
- image_prompt: a complete, self-contained still-image description: the main subject (full canonical description), the setting, lighting, atmosphere, and composition. Never reference other scenes ("the same robot as before" is INVALID — repeat the description).
- video_prompt: how the still comes to life as a short clip. Present tense, continuous action: subject motion, environmental motion, camera movement. No audio or dialogue cues — clips are silent.

Structure your response as JSON:
{
  "main_subject": "...",
  "scenes": [
    {"scene_number": 1, "prompt": "...", "image_prompt": "...", "video_prompt": "..."},
    ...
  ]
}

The scenes array must contain EXACTLY %d entries. A response with any empty field or the wrong number of scenes is INVALID and will be rejected.`, sceneCount, sceneCount)
}
