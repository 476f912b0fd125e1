package render

import (
	"slices"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPackage     = "com.mobscience.match.ui.wrappers"
	DefaultLayoutUtils = "com.mobscience.match.ui.LayoutUtils"
	DefaultPopupBase   = "com.mobscience.match.ui.popup.BasePopup"
	DefaultElementBase = "com.mobscience.match.ui.elements.BaseUiElement"

	eventClassPath = "starling.events.Event"
	exitTrigger    = "onExit"
)

// WrapperOptions names the packages and base classes the generated class
// refers to.
type WrapperOptions struct {
	Package     string
	LayoutUtils string
	PopupBase   string
	ElementBase string
	// ClassPaths overrides the class path for a component type.
	ClassPaths map[ComponentType]string
}

func DefaultWrapperOptions() WrapperOptions {
	return WrapperOptions{
		Package:     DefaultPackage,
		LayoutUtils: DefaultLayoutUtils,
		PopupBase:   DefaultPopupBase,
		ElementBase: DefaultElementBase,
	}
}

var defaultClassPaths = map[ComponentType]string{
	ComponentText:             "starling.text.TextField",
	ComponentButton:           "com.mobscience.match.ui.elements.buttons.MSButton",
	ComponentScaleButton:      "com.mobscience.match.ui.elements.buttons.MSScaleButton",
	ComponentScaleButtonIcons: "com.mobscience.match.ui.elements.buttons.MSScaleButtonIcons",
}

// ClassPath is the fully qualified class a component is declared as.
func (o WrapperOptions) ClassPath(c Component) string {
	if p, ok := o.ClassPaths[c.Type]; ok && p != "" {
		return p
	}
	if c.Type == ComponentImage {
		if c.File != "" {
			return "starling.display.Image"
		}
		return "starling.display.DisplayObject"
	}
	return defaultClassPaths[c.Type]
}

type wrapperMember struct {
	Name string
	Type string
}

type wrapperData struct {
	Package   string
	Class     string
	Base      string
	Imports   []string
	Members   []wrapperMember
	Callbacks []string
}

var wrapperTemplate = template.Must(template.New("wrapper").Parse(`/**
 * AUTO GENERATED WRAPPER
 * DO NOT MODIFY THIS CLASS!
 * Extend this class instead
 */
package {{.Package}}
{
{{range .Imports}}    import {{.}};
{{end}}
    public class {{.Class}} extends {{.Base}}
    {
{{range .Members}}        public var _{{.Name}}:{{.Type}};
{{end}}
        public function {{.Class}}(callback:Function = null, acceptCallback:Function = null)
        {
            super();
        }

        override protected function createElements():void
        {
{{range .Members}}            _{{.Name}} = LayoutUtils.initAsset("{{.Name}}", layout, this) as {{.Type}};
{{end}}        }
{{range .Callbacks}}
        public function {{.}}(event:Event):void
        {
        }
{{end}}    }
}
`))

// IsPopup reports whether a layout name renders as a popup.
func IsPopup(layoutName string) bool {
	return strings.Contains(strings.ToLower(layoutName), "popup")
}

// Wrapper renders the ActionScript wrapper class for layoutName.
func Wrapper(layoutName string, src Source, opts WrapperOptions) (string, error) {
	popup := IsPopup(layoutName)
	base := opts.ElementBase
	if popup {
		base = opts.PopupBase
	}

	imports := []string{opts.LayoutUtils, base}
	var members []wrapperMember
	var callbacks []string
	seen := make(map[string]bool)
	for _, c := range Components(src.Layers()) {
		if c.Layer.IsGroup() {
			continue
		}
		if seen[c.Name] {
			log.Warn().Str("layout", layoutName).Str("component", c.Name).Msg("render.Wrapper skipping duplicate component")
			continue
		}
		seen[c.Name] = true
		classPath := opts.ClassPath(c)
		imports = append(imports, classPath)
		members = append(members, wrapperMember{Name: c.Name, Type: className(classPath)})
		if c.Type.IsButton() && !(popup && c.Trigger == exitTrigger) && !slices.Contains(callbacks, c.Trigger) {
			callbacks = append(callbacks, c.Trigger)
		}
	}
	if len(callbacks) > 0 {
		imports = append(imports, eventClassPath)
	}
	slices.Sort(imports)
	imports = slices.Compact(imports)

	data := wrapperData{
		Package:   opts.Package,
		Class:     layoutName + "Wrapper",
		Base:      className(base),
		Imports:   imports,
		Members:   members,
		Callbacks: callbacks,
	}
	var b strings.Builder
	if err := wrapperTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func className(classPath string) string {
	return classPath[strings.LastIndex(classPath, ".")+1:]
}
