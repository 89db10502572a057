package catalog

import "github.com/manash/prodstudio/pkg/models"

func defaultEntries() map[models.Category][]models.Preset {
	return map[models.Category][]models.Preset{
		models.CategoryCamera: {
			{
				ID:          "camera_dslr",
				Name:        "DSLR Effect",
				Description: "Shallow depth of field, sharp focus, professional look.",
				Prompt:      "DSLR, 85mm lens, f/1.8, high resolution, shallow depth of field, bokeh",
			},
			{
				ID:          "camera_cinematic",
				Name:        "Cinematic",
				Description: "Wide aspect ratio, dramatic lighting, film grain.",
				Prompt:      "cinematic film still, anamorphic lens, film grain, epic lighting",
			},
		},
		models.CategoryLighting: {
			{
				ID:          "lighting_softbox",
				Name:        "Studio Softbox",
				Description: "Even, diffused light, minimizes shadows.",
				Prompt:      "professional studio lighting, softbox, evenly lit, diffused light",
			},
			{
				ID:          "lighting_golden_hour",
				Name:        "Golden Hour",
				Description: "Warm, dramatic, long shadows.",
				Prompt:      "golden hour lighting, warm dramatic light, long shadows",
			},
		},
		models.CategoryMockup: {
			{
				ID:          "mockup_marble",
				Name:        "On a Marble Surface",
				Description: "Elegant and clean, placed on a white marble slab.",
				Prompt:      "product photography, on a white marble surface, elegant background",
			},
			{
				ID:          "mockup_floating",
				Name:        "Floating",
				Description: "Product floating mid-air with a subtle drop shadow.",
				Prompt:      "product floating mid-air, with a subtle drop shadow, against a clean background",
			},
		},
		models.CategoryManipulation: {
			{
				ID:          "manipulation_surreal",
				Name:        "Surreal Composition",
				Description: "Dreamlike and artistic scene.",
				Prompt:      "surreal composition, dreamlike, artistic",
			},
			{
				ID:          "manipulation_minimalist",
				Name:        "Minimalist",
				Description: "Clean background, focused on the product.",
				Prompt:      "minimalist, clean background, simple, single color background",
			},
		},
		models.CategoryProductRetouch: {
			{
				ID:          "retouch_enhance",
				Name:        "Enhance Details",
				Description: "Sharpen textures and clarify details.",
				Prompt:      "highly detailed, sharp focus, 4k, high resolution",
			},
			{
				ID:          "retouch_remove_imperfections",
				Name:        "Remove Imperfections",
				Description: "Clean up dust, scratches, and minor flaws.",
				Prompt:      "clean product, remove any scratches or dust, perfect condition",
			},
		},
		models.CategoryPeopleRetouch: {
			{
				ID:          "people_natural_skin",
				Name:        "Natural Skin",
				Description: "Smooth skin while retaining natural texture.",
				Prompt:      "natural skin texture, smooth skin, portrait retouching",
			},
			{
				ID:          "people_headshot",
				Name:        "Professional Headshot",
				Description: "Corporate lighting and professional retouching.",
				Prompt:      "professional headshot retouching, corporate lighting",
			},
		},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultVersion, defaultEntries())
	if err != nil {
		panic("catalog: invalid built-in presets: " + err.Error())
	}
	return c
}
