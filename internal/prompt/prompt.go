package prompt

import (
	"fmt"
	"strings"

	"github.com/manash/prodstudio/pkg/models"
)

// Input is everything the composer reads. It is a plain value so identical
// inputs always compose to identical text.
type Input struct {
	AspectRatio    models.AspectRatio
	Transparent    bool
	HasReference   bool
	Mockup         *models.Preset
	Camera         []models.Preset
	Lighting       []models.Preset
	Manipulation   []models.Preset
	ProductRetouch []models.Preset
	PeopleRetouch  []models.Preset
	Brief          string
	Composite      bool
}

// FromParams builds an Input from a generation snapshot.
func FromParams(p models.GenerationParams) Input {
	in := Input{
		AspectRatio:    p.Export.AspectRatio,
		Transparent:    p.Export.Transparent,
		HasReference:   p.Reference != nil,
		Camera:         p.Selections[models.CategoryCamera],
		Lighting:       p.Selections[models.CategoryLighting],
		Manipulation:   p.Selections[models.CategoryManipulation],
		ProductRetouch: p.Selections[models.CategoryProductRetouch],
		PeopleRetouch:  p.Selections[models.CategoryPeopleRetouch],
		Brief:          p.Brief,
		Composite:      p.Composite,
	}
	if p.Mockup != nil {
		m := *p.Mockup
		in.Mockup = &m
	}
	if in.AspectRatio == "" {
		in.AspectRatio = models.DefaultAspectRatio
	}
	return in
}

type section func(in Input) string

// sections is the fixed output order. The model reads these top to bottom.
var sections = []section{
	preamble,
	sceneGoal,
	graphicApplication,
	styleInspiration,
	creativeInstructions,
	creativeDirection,
	captureInstructions,
	postProduction,
	exportRequirements,
}

// Compose renders the full instruction text.
func Compose(in Input) string {
	parts := make([]string, 0, len(sections))
	for _, build := range sections {
		parts = append(parts, build(in))
	}
	return strings.Join(parts, "")
}

func preamble(in Input) string {
	return "You are an expert product photographer and digital artist.\n" +
		"Your task is to create a dynamic, professional advertisement image. The FIRST image is the primary subject (a product, logo, or graphic). You will place this subject into a newly generated, photorealistic scene.\n\n" +
		"--- MOST IMPORTANT RULE ---\n" +
		fmt.Sprintf("The final output image's dimensions MUST strictly follow a %s aspect ratio. This is a non-negotiable requirement.\n\n", in.AspectRatio)
}

func sceneGoal(in Input) string {
	var b strings.Builder
	b.WriteString("--- PRIMARY SCENE GOAL ---\n")
	if m := in.Mockup; m != nil && !m.IsNone() {
		fmt.Fprintf(&b, "Place the subject from the FIRST image within a photorealistic \"%s\" environment. ", m.Name)
		b.WriteString("The subject must be integrated naturally into this scene. ")
		fmt.Fprintf(&b, "For context, a \"%s\" is: %s.\n\n", m.Name, strings.TrimSuffix(m.Description, "."))
		return b.String()
	}
	b.WriteString("Place the subject from the FIRST image on a clean, elegant, professional studio backdrop that complements its style and the instructions below.\n\n")
	return b.String()
}

func graphicApplication(Input) string {
	return "--- LOGO & GRAPHIC APPLICATION (VERY IMPORTANT) ---\n" +
		"If the subject in the FIRST image is a logo, sticker, text, or flat graphic, your primary task is NOT just to place it in the scene, but to **apply it realistically onto a surface within the scene**.\n" +
		"- If a mockup is selected (e.g., a marble surface, a table, or a package), you MUST apply the logo to the relevant object in that mockup scene.\n" +
		"- The application must be realistic: the logo should wrap around curved surfaces, match the lighting and shadows of the object, and adopt the texture of the surface it's on (e.g., look like it's printed on fabric, etched on glass, etc.).\n" +
		"- The logo itself should remain clear and preserve its original colors and form.\n\n"
}

// NoCompositeClause forbids pasting the subject into the reference image.
const NoCompositeClause = "**IMPORTANT:** Do NOT composite the subject directly into the reference image."

func styleInspiration(in Input) string {
	if !in.HasReference {
		return ""
	}
	return "--- SCENE STYLE INSPIRATION ---\n" +
		"The SECOND image provided is a reference for the overall style and mood.\n" +
		NoCompositeClause + "\n" +
		"Instead, the entire new scene you generate (whether it's the mockup or the studio backdrop) must be heavily INSPIRED by the reference image. Capture its atmosphere, lighting, color palette, and aesthetic. The final result must be a completely new and unique image that combines the product, the mockup scene, and the reference style.\n\n"
}

const (
	CompositeOnClause  = "**Magic Composite Mode is ON**: You have creative freedom to interpret these instructions to create the most stunning image possible."
	CompositeOffClause = "**Manual Design Kit Mode is ON**: Strictly adhere to the following instructions."
)

func creativeInstructions(in Input) string {
	var b strings.Builder
	b.WriteString("--- CREATIVE & TECHNICAL INSTRUCTIONS ---\n")
	b.WriteString("- **Composition**: If the subject is a physical product, it is CRITICAL to keep its exact composition, camera angle, and perspective from the original input image. Build the new scene *around* the product as it is. HOWEVER, if the subject is a logo/graphic being applied to a mockup surface, you should instead focus on placing the logo naturally on the mockup's surface, adjusting its perspective and wrapping it as needed for realism. Do not change the logo's core design.\n")
	if in.Composite {
		b.WriteString(CompositeOnClause)
	} else {
		b.WriteString(CompositeOffClause)
	}
	b.WriteString("\n")
	return b.String()
}

func creativeDirection(in Input) string {
	brief := strings.TrimSpace(in.Brief)
	if brief == "" {
		return ""
	}
	return "\n- **Creative Direction**: \"" + brief + "\"\n"
}

func captureInstructions(in Input) string {
	return presetBlock("Camera Instructions", in.Camera) +
		presetBlock("Lighting Instructions", in.Lighting)
}

func postProduction(in Input) string {
	var b strings.Builder
	b.WriteString("\n\n--- POST-PRODUCTION & RETOUCHING ---\n")
	b.WriteString(presetBlock("Product Retouching", in.ProductRetouch))
	b.WriteString(presetBlock("People Retouching", in.PeopleRetouch))
	b.WriteString(presetBlock("Creative Manipulations & FX", in.Manipulation))
	return b.String()
}

const (
	TransparentBackground = "The final image MUST have a transparent background (PNG format). If compositing, this means removing the original background but keeping all generated shadows and reflections for placing on another backdrop."
	OpaqueBackground      = "The final image must have a fully rendered, opaque background."
	OutputOnly            = "The final output must be ONLY the generated image. Do not add any text, watermarks, or annotations. The product is the hero."
)

func exportRequirements(in Input) string {
	background := OpaqueBackground
	if in.Transparent {
		background = TransparentBackground
	}
	return "\n--- FINAL EXPORT REQUIREMENTS ---\n" +
		"- **Background**: " + background + "\n" +
		"- **Output**: " + OutputOnly
}

// presetBlock lists presets in selection order. It is empty when nothing but
// sentinel entries is selected.
func presetBlock(title string, presets []models.Preset) string {
	var lines []string
	for _, p := range presets {
		if p.IsNone() {
			continue
		}
		lines = append(lines, fmt.Sprintf("  - %s: %s.\n", p.Name, strings.TrimSuffix(p.Description, ".")))
	}
	if len(lines) == 0 {
		return ""
	}
	return fmt.Sprintf("- **%s**:\n", title) + strings.Join(lines, "")
}
