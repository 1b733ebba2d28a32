package asyncapi

import (
	"bytes"
	"html/template"
)

const (
	viewerJS  = "https://unpkg.com/@asyncapi/react-component@1.0.0-next.39/browser/standalone/index.js"
	viewerCSS = "https://unpkg.com/@asyncapi/react-component@1.0.0-next.39/styles/default.min.css"
)

var viewer = template.Must(template.New("asyncapi").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<link type="text/css" rel="stylesheet" href="{{.CSS}}">
<style>
html,
body {
font-family: ui-sans-serif, system-ui, Segoe UI, Roboto, Helvetica Neue, sans-serif,
Apple Color Emoji, Segoe UI Emoji, Segoe UI Symbol, Noto Color Emoji
}
</style>
<title>{{.Title}}</title>
</head>
<body>
<div id="asyncapi"></div>
<script src="{{.JS}}"></script>
<script>
AsyncApiStandalone.render({
schema: {
    url: {{.URL}},
    options: { method: "GET", mode: "cors" },
},
config: {
    show: {
    sidebar: true,
    }
},
}, document.getElementById('asyncapi'));
</script>
</body>
</html>`))

// HTML renders the viewer page loading the document from url.
func HTML(title, url string) ([]byte, error) {
	var buf bytes.Buffer
	err := viewer.Execute(&buf, struct {
		Title, URL, JS, CSS string
	}{title, url, viewerJS, viewerCSS})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
