package gemini

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/manash/prodstudio/pkg/models"
)

const analysisPrompt = `You are a professional art director. Analyze the provided product image (first) and the reference/style image (second).

Your goal is to suggest the best technical and creative presets to create a high-end advertisement by placing the product into a NEW scene that is HEAVILY INSPIRED by the reference image's style, mood, and lighting. Do NOT suggest simply putting the product into the reference image.

Your response MUST be in JSON format. Provide suggestions for the following categories by returning the preset 'id's.
- "camera": Suggest 1-2 camera presets that would best frame the product in a scene like the reference.
- "lighting": Suggest 1-2 lighting presets that mimic the reference image's mood.
- "manipulation": Suggest 2-3 manipulation/FX presets to seamlessly blend the product and achieve the desired style.
- "retouch": Suggest 1-2 essential product retouching presets.
- "peopleRetouch": If the product is for people (e.g., makeup) or the reference has people, suggest 1 preset. Otherwise, return an empty array.
- "mockup": Return an empty array. Mockups are not used with reference images.

Example response:
{
  "camera": ["camera_cinematic"],
  "lighting": ["lighting_golden_hour"],
  "mockup": [],
  "manipulation": ["manipulation_surreal"],
  "retouch": ["retouch_enhance"],
  "peopleRetouch": []
}`

const briefPromptWithReference = `You are a world-class creative director specializing in high-end advertising. Your task is to generate 3 distinct and creative prompt variations for an AI image generator.

Analyze the provided product image (first) and the style reference image (second).

The goal is to place the product from the first image into a completely new, photorealistic scene that is heavily inspired by the style, mood, composition, camera angle, and lighting of the second image.

Each prompt variation must be a complete, detailed instruction for the AI. Give each variation a short, catchy title that reflects its creative direction. For example, a title could be "Cinematic Drama" or "Minimalist Serenity". The prompt itself should be descriptive and evocative.

Your response MUST be in JSON format. Do not output anything else.`

const briefPrompt = `You are a world-class creative director specializing in high-end advertising. Your task is to generate 3 distinct and creative prompt variations for an AI image generator based on the provided product image.

For each variation, invent a completely new, photorealistic scene to place the product in. Each scene should have a different mood and style (e.g., one could be luxurious and dark, another bright and natural, a third futuristic and neon).

Each prompt variation must be a complete, detailed instruction for the AI. Give each variation a short, catchy title that reflects its creative direction. For example, a title could be "Cinematic Drama" or "Minimalist Serenity". The prompt itself should be descriptive and evocative.

Your response MUST be in JSON format. Do not output anything else.`

func upscalePrompt(target models.UpscaleTarget) string {
	resolution := "an ultra-high-definition 4K resolution (4096px on its longest side)"
	if target == models.UpscaleHD {
		resolution = "a high-definition resolution, approximately 2K (2048px on its longest side)"
	}
	return fmt.Sprintf("Please upscale this image to %s.\n"+
		"**Crucial instruction:** Preserve all original details, textures, sharpness, and lighting perfectly. "+
		"Do not add, remove, or alter any elements or the style of the image. Avoid over-sharpening or creating edge halos. "+
		"The goal is a clean, high-fidelity upscale for professional use. The output must be only the upscaled image.", resolution)
}

func suggestionSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(models.Categories()))
	required := make([]string, 0, len(models.Categories()))
	for _, cat := range models.Categories() {
		props[string(cat)] = &genai.Schema{
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		}
		required = append(required, string(cat))
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   required,
	}
}

func briefSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title":  {Type: genai.TypeString},
				"prompt": {Type: genai.TypeString},
			},
			Required: []string{"title", "prompt"},
		},
	}
}
