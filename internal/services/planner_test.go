package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePlan(n int) *StoryPlan {
	plan := &StoryPlan{MainSubject: "a small rusty robot with one blue eye"}
	for i := 1; i <= n; i++ {
		plan.Scenes = append(plan.Scenes, ScenePlan{
			SceneNumber: i,
			Prompt:      fmt.Sprintf("beat %d of the story", i),
			ImagePrompt: fmt.Sprintf("a small rusty robot with one blue eye, scene %d", i),
			VideoPrompt: "the robot slowly turns its head as leaves drift past",
		})
	}
	return plan
}

func TestValidatePlanAcceptsFullRange(t *testing.T) {
	for _, n := range []int{1, 2, 3, 10, 99} {
		plan := makePlan(n)
		require.NoError(t, ValidatePlan(plan, n), "n=%d", n)
		assert.Len(t, plan.Scenes, n)
		for i, scene := range plan.Scenes {
			assert.Equal(t, i+1, scene.SceneNumber)
			assert.NotEmpty(t, scene.ImagePrompt)
		}
	}
}

func TestValidatePlanRejectsWrongCount(t *testing.T) {
	plan := makePlan(2)
	err := ValidatePlan(plan, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlanInvalid))
}

func TestValidatePlanRejectsEmptyImagePrompt(t *testing.T) {
	plan := makePlan(3)
	plan.Scenes[1].ImagePrompt = ""

	err := ValidatePlan(plan, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlanInvalid))
}

func TestValidatePlanFillsMissingSceneNumbers(t *testing.T) {
	plan := makePlan(3)
	for i := range plan.Scenes {
		plan.Scenes[i].SceneNumber = 0
	}

	require.NoError(t, ValidatePlan(plan, 3))
	for i, scene := range plan.Scenes {
		assert.Equal(t, i+1, scene.SceneNumber)
	}
}

func TestValidatePlanRejectsOutOfOrderNumbers(t *testing.T) {
	plan := makePlan(3)
	plan.Scenes[0].SceneNumber = 2
	plan.Scenes[1].SceneNumber = 1

	err := ValidatePlan(plan, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPlanInvalid))
}
