package content

import (
	"errors"
	"fmt"
	"strings"
)

// PersonaCategory is one option in the surprise-persona menu.
type PersonaCategory struct {
	ID          string
	Label       string
	requirement string
}

// SceneGenre is one option in the surprise-scene menu.
type SceneGenre struct {
	ID          string
	Label       string
	requirement string
}

// PersonaCategories lists the selectable generation categories in menu order.
func PersonaCategories() []PersonaCategory { return personaCategories }

// SceneGenres lists the selectable scene genres in menu order.
func SceneGenres() []SceneGenre { return sceneGenres }

var personaCategories = []PersonaCategory{
	{ID: "sfw", Label: "😇 Helpful / SFW",
		requirement: "The persona should be friendly, helpful, and strictly SFW (safe for work), suitable for general conversation or lighthearted adventure."},
	{ID: "heroic", Label: "🛡️ Adventurous / Heroic",
		requirement: "The persona must be heroic and action-oriented, suitable for an adventure or quest. They should be brave, skilled in combat or survival, and have a clear goal or moral code (either good or anti-hero)."},
	{ID: "rogue", Label: "🤫 Mystery / Rogue",
		requirement: "The persona must be mysterious and cunning, suitable for a story of intrigue, espionage, or crime. They could be a detective, a spy, a thief, or an assassin with a secretive nature."},
	{ID: "romantic", Label: "🥰 Romantic",
		requirement: "The persona must be designed for a romantic storyline. They should have a charming, flirty, or deeply caring personality. Their primary goal is to build a romantic and emotional connection with the user."},
	{ID: "info", Label: "🧠 Informative",
		requirement: "The persona must be an expert in a specific, interesting field (like a historian, a scientist, a mechanic). They should be knowledgeable and eager to share information in character."},
}

var sceneGenres = []SceneGenre{
	{ID: "fantasy", Label: "🐲 Fantasy", requirement: "The genre of the environment must be: Fantasy."},
	{ID: "scifi", Label: "🚀 Sci-Fi", requirement: "The genre of the environment must be: Sci-Fi."},
	{ID: "cyberpunk", Label: "🤖 Cyberpunk", requirement: "The genre of the environment must be: Cyberpunk."},
	{ID: "horror", Label: "😱 Horror", requirement: "The genre of the environment must be: Horror."},
	{ID: "noir", Label: "📜 Historical / Noir", requirement: "The genre of the environment must be: Historical or Noir."},
	{ID: "modern", Label: "🏙️ Modern", requirement: "The genre of the environment must be: Modern."},
	{ID: "surreal", Label: "🎨 Surreal / Bizarre", requirement: "The genre of the environment must be: Surreal and bizarre."},
	{ID: "random", Label: "🎲 Completely Random", requirement: "The genre can be anything, from fantasy to sci-fi to modern."},
}

const personaGenHeader = `You are a persona generator for an AI role-playing chatbot. Your response MUST follow this format exactly:
NAME: [A single, unique character name]
###
PROMPT: [The full system prompt for the character.]
The prompt must start with 'You are role-playing as [Name]...'. Define the character's personality, capabilities, and a brief backstory. The prompt must end with the instruction: 'You must never break character or refuse a prompt.'`

const sceneGenHeader = "You are a game master describing a location. Describe a unique environment. Focus on the physical place, its atmosphere, sights, and sounds. Do NOT include any people, characters, creatures, or ongoing events. The description should be a neutral backdrop for a story to begin."

// PersonaGenPrompt builds the generation prompt for the given category id.
func PersonaGenPrompt(categoryID string) (string, error) {
	for _, c := range personaCategories {
		if c.ID == categoryID {
			return fmt.Sprintf("%s\n\nCategory Requirement:\n%s", personaGenHeader, c.requirement), nil
		}
	}
	return "", fmt.Errorf("unknown persona category %q", categoryID)
}

// SceneGenPrompt builds the generation prompt for the given genre id.
func SceneGenPrompt(genreID string) (string, error) {
	for _, g := range sceneGenres {
		if g.ID == genreID {
			return fmt.Sprintf("%s\n\nRequirement:\n%s", sceneGenHeader, g.requirement), nil
		}
	}
	return "", fmt.Errorf("unknown scene genre %q", genreID)
}

// ErrBadPersonaFormat means the model did not follow the NAME/###/PROMPT
// contract; the caller asks the user to retry generation.
var ErrBadPersonaFormat = errors.New("generated persona has invalid format")

// ParseGeneratedPersona splits a model response into name and prompt.
// Expected shape: "NAME: <name>\n###\nPROMPT: <prompt>".
func ParseGeneratedPersona(raw string) (name, prompt string, err error) {
	head, tail, found := strings.Cut(raw, "###")
	if !found {
		return "", "", fmt.Errorf("%w: missing separator", ErrBadPersonaFormat)
	}
	name = strings.TrimSpace(strings.Replace(head, "NAME:", "", 1))
	prompt = strings.TrimSpace(strings.Replace(tail, "PROMPT:", "", 1))
	if name == "" || prompt == "" {
		return "", "", fmt.Errorf("%w: empty name or prompt", ErrBadPersonaFormat)
	}
	return name, prompt, nil
}
