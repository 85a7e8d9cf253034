package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"
	"strconv"
	"time"
)

var portalTmpl *template.Template

var funcs = template.FuncMap{
	"kg":   func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
	"when": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 UTC") },
}

// loadTemplatesFromFS parses the templates under dir. Tests use it to
// simulate failures.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	portalTmpl, err = template.New("").Funcs(funcs).ParseFS(sub, "*.html")
	return err
}

// LoadTemplates parses the embedded templates. Call it during startup.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// PortalData is the view model of the captive portal page.
type PortalData struct {
	DeviceName string
	UserName   string
	Gender     string
	Age        uint32
	HeightMM   uint32
	WeightKg   float64
	BodyFatPct float64
	Impedance  uint32
	MeasuredAt time.Time
	HasReading bool
}

func RenderPortal(w io.Writer, data *PortalData) error {
	if portalTmpl == nil {
		return errors.New("portal template not loaded: call views.LoadTemplates during startup")
	}
	return portalTmpl.ExecuteTemplate(w, "portal.html", data)
}
