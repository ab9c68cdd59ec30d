package templates

// indexTemplate is rewritten on every start. MapHTML carries the rendered
// map fragment, which pulls in Leaflet itself.
const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{ .Title }}</title>
    <link rel="stylesheet" href="{{ .StaticURL }}/css/style.css">
</head>
<body>
    <div class="container">
        <h1>{{ .Title }}</h1>
        <div class="map-container" id="map-container">
            {{ .MapHTML }}
        </div>
    </div>
    <script>
        document.addEventListener('DOMContentLoaded', function() {
            console.log('Available basemaps:', {{ .AvailableBasemaps }});
            console.log('Selected basemap:', {{ .SelectedBasemap }});
            console.log('Use the layer control in the top-right corner of the map to switch basemaps');
        });
    </script>
{{- if .LiveReload }}
    <script>
        (function() {
            let ws;
            let reconnectTimer;

            function connect() {
                const protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
                ws = new WebSocket(protocol + '//' + window.location.host + '/ws');

                ws.onopen = function() {
                    clearTimeout(reconnectTimer);
                };

                ws.onmessage = function(event) {
                    const message = JSON.parse(event.data);
                    if (message.type === 'full_reload') {
                        window.location.reload();
                    }
                };

                ws.onclose = function() {
                    reconnectTimer = setTimeout(connect, 2000);
                };
            }

            connect();
        })();
    </script>
{{- end }}
</body>
</html>
`

// defaultCSS is only written when the data directory has no stylesheet, so
// local edits survive restarts.
const defaultCSS = `/* Basic styles - customize as needed */
body {
    font-family: Arial, sans-serif;
    margin: 0;
    padding: 0;
    background-color: #f5f5f5;
    height: 100vh;
    display: flex;
    flex-direction: column;
}

.container {
    flex: 1;
    display: flex;
    flex-direction: column;
    align-items: center;
    padding: 20px;
}

.map-container {
    background: white;
    border-radius: 8px;
    box-shadow: 0 2px 4px rgba(0,0,0,0.1);
    overflow: hidden;
    width: 66.67%;
    height: 70vh;
}

.atlas-map {
    width: 100%;
    height: 100%;
}

h1 {
    color: #333;
    text-align: center;
    margin-bottom: 30px;
}

.basemap-list {
    display: flex;
    gap: 10px;
    flex-wrap: wrap;
    margin-top: 10px;
}

.basemap-tag {
    background: #e9ecef;
    padding: 4px 8px;
    border-radius: 4px;
    font-size: 12px;
    color: #495057;
}
`
