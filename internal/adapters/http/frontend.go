package http

import (
	"net/http"
)

// frontendHTML is the embedded HTML for the layer registry frontend.
// Mobile-first, responsive design with pure CSS.
const frontendHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Stratum - Layer Registry</title>
    <style>
        :root {
            --primary: #2563eb;
            --primary-dark: #1d4ed8;
            --success: #16a34a;
            --error: #dc2626;
            --warning: #d97706;
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --text-muted: #64748b;
            --border: #e2e8f0;
            --radius: 8px;
            --shadow: 0 1px 3px rgba(0,0,0,0.1);
        }

        * {
            box-sizing: border-box;
            margin: 0;
            padding: 0;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.5;
            min-height: 100vh;
        }

        .container {
            max-width: 900px;
            margin: 0 auto;
            padding: 1rem;
        }

        header {
            text-align: center;
            padding: 1.5rem 0;
            border-bottom: 1px solid var(--border);
            margin-bottom: 1rem;
        }

        header h1 {
            font-size: 1.5rem;
            font-weight: 600;
            color: var(--primary);
        }

        header p {
            color: var(--text-muted);
            font-size: 0.875rem;
            margin-top: 0.25rem;
        }

        .stats-bar {
            display: flex;
            justify-content: center;
            gap: 2rem;
            padding: 0.75rem 0;
            margin-bottom: 1rem;
            font-size: 0.875rem;
            color: var(--text-muted);
        }

        .stats-bar strong {
            color: var(--text);
        }

        .card {
            background: var(--card);
            border-radius: var(--radius);
            box-shadow: var(--shadow);
            padding: 1.25rem;
            margin-bottom: 1rem;
        }

        .card-title {
            font-size: 0.875rem;
            font-weight: 600;
            text-transform: uppercase;
            letter-spacing: 0.05em;
            color: var(--text-muted);
            margin-bottom: 0.75rem;
        }

        .search-row {
            display: flex;
            gap: 0.5rem;
            flex-wrap: wrap;
        }

        .search-row input[type="text"] {
            flex: 1;
            min-width: 200px;
            padding: 0.625rem 0.75rem;
            border: 1px solid var(--border);
            border-radius: var(--radius);
            font-size: 0.9375rem;
        }

        .search-row input[type="text"]:focus {
            outline: none;
            border-color: var(--primary);
        }

        .search-row select {
            padding: 0.625rem 0.75rem;
            border: 1px solid var(--border);
            border-radius: var(--radius);
            font-size: 0.9375rem;
            background: var(--card);
        }

        button {
            padding: 0.625rem 1.25rem;
            background: var(--primary);
            color: white;
            border: none;
            border-radius: var(--radius);
            font-size: 0.9375rem;
            font-weight: 500;
            cursor: pointer;
        }

        button:hover {
            background: var(--primary-dark);
        }

        button:disabled {
            opacity: 0.6;
            cursor: not-allowed;
        }

        button.secondary {
            background: var(--card);
            color: var(--primary);
            border: 1px solid var(--border);
        }

        button.secondary:hover {
            background: var(--bg);
        }

        .layer {
            border: 1px solid var(--border);
            border-radius: var(--radius);
            padding: 1rem;
            margin-bottom: 0.75rem;
        }

        .layer-header {
            display: flex;
            justify-content: space-between;
            align-items: baseline;
            gap: 0.5rem;
            flex-wrap: wrap;
        }

        .layer-title {
            font-weight: 600;
        }

        .layer-name {
            font-family: 'SF Mono', Menlo, Consolas, monospace;
            font-size: 0.8125rem;
            color: var(--text-muted);
        }

        .badge {
            display: inline-block;
            padding: 0.125rem 0.5rem;
            border-radius: 9999px;
            font-size: 0.75rem;
            font-weight: 600;
        }

        .badge-wms { background: #dbeafe; color: #1e40af; }
        .badge-wfs { background: #dcfce7; color: #166534; }
        .badge-wmts { background: #fef3c7; color: #92400e; }

        .layer-abstract {
            font-size: 0.875rem;
            color: var(--text-muted);
            margin-top: 0.375rem;
        }

        .layer-meta {
            font-size: 0.8125rem;
            color: var(--text-muted);
            margin-top: 0.375rem;
        }

        .layer-actions {
            display: flex;
            gap: 0.5rem;
            margin-top: 0.75rem;
        }

        .layer-actions button {
            padding: 0.375rem 0.875rem;
            font-size: 0.8125rem;
        }

        .params-table {
            width: 100%;
            border-collapse: collapse;
            font-size: 0.8125rem;
            margin-top: 0.75rem;
        }

        .params-table th,
        .params-table td {
            text-align: left;
            padding: 0.375rem 0.5rem;
            border-bottom: 1px solid var(--border);
        }

        .params-table th {
            color: var(--text-muted);
            font-weight: 500;
            white-space: nowrap;
            width: 1%;
        }

        .params-table td {
            font-family: 'SF Mono', Menlo, Consolas, monospace;
            word-break: break-all;
        }

        .preview-box {
            margin-top: 0.75rem;
            border: 1px solid var(--border);
            border-radius: var(--radius);
            padding: 0.75rem;
            background: var(--bg);
        }

        .preview-box img {
            max-width: 100%;
            border-radius: 4px;
            display: block;
        }

        .preview-box pre {
            font-size: 0.75rem;
            overflow-x: auto;
            white-space: pre-wrap;
            word-break: break-all;
            max-height: 300px;
            overflow-y: auto;
        }

        .message {
            padding: 0.75rem 1rem;
            border-radius: var(--radius);
            font-size: 0.875rem;
            margin-top: 0.75rem;
        }

        .message-error {
            background: #fef2f2;
            color: var(--error);
            border: 1px solid #fecaca;
        }

        .message-info {
            background: #eff6ff;
            color: var(--primary-dark);
            border: 1px solid #bfdbfe;
        }

        .empty-state {
            text-align: center;
            color: var(--text-muted);
            padding: 2rem 0;
            font-size: 0.875rem;
        }

        .spinner {
            display: inline-block;
            width: 16px;
            height: 16px;
            border: 2px solid rgba(255,255,255,0.4);
            border-top-color: white;
            border-radius: 50%;
            animation: spin 0.6s linear infinite;
            vertical-align: middle;
        }

        @keyframes spin {
            to { transform: rotate(360deg); }
        }

        footer {
            text-align: center;
            padding: 1.5rem 0;
            color: var(--text-muted);
            font-size: 0.8125rem;
        }

        footer a {
            color: var(--primary);
            text-decoration: none;
        }

        @media (max-width: 600px) {
            .search-row {
                flex-direction: column;
            }
            .search-row input[type="text"] {
                min-width: 0;
            }
        }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>Stratum</h1>
            <p>OGC layer registry and request resolution</p>
        </header>

        <div class="stats-bar" id="stats-bar">
            <span>Layers: <strong id="stat-layers">&ndash;</strong></span>
            <span>Services: <strong id="stat-services">&ndash;</strong></span>
        </div>

        <div class="card">
            <div class="card-title">Search Layers</div>
            <form id="search-form">
                <div class="search-row">
                    <input type="text" id="query" placeholder="Name, title or abstract&hellip;" autocomplete="off">
                    <select id="service-type">
                        <option value="">All types</option>
                        <option value="WMS">WMS</option>
                        <option value="WFS">WFS</option>
                        <option value="WMTS">WMTS</option>
                    </select>
                    <button type="submit" id="search-btn">Search</button>
                </div>
            </form>
        </div>

        <div class="card">
            <div class="card-title">Results</div>
            <div id="results">
                <div class="empty-state">Search the registry to list layers.</div>
            </div>
        </div>

        <footer>
            <a href="/docs">API documentation</a>
        </footer>
    </div>

    <script>
        (function() {
            const form = document.getElementById('search-form');
            const results = document.getElementById('results');
            const searchBtn = document.getElementById('search-btn');

            loadStats();
            search();

            form.addEventListener('submit', function(e) {
                e.preventDefault();
                search();
            });

            results.addEventListener('click', function(e) {
                const btn = e.target.closest('button[data-action]');
                if (!btn) return;
                const id = btn.getAttribute('data-id');
                if (btn.getAttribute('data-action') === 'resolve') {
                    resolveLayer(id, btn);
                } else {
                    previewLayer(id, btn);
                }
            });

            async function loadStats() {
                try {
                    const response = await fetch('/api/v1/stats');
                    if (!response.ok) return;
                    const stats = await response.json();
                    document.getElementById('stat-layers').textContent = stats.total_layers;
                    document.getElementById('stat-services').textContent = stats.service_count;
                } catch (err) {
                    // stats are decorative; leave the placeholders
                }
            }

            async function search() {
                const query = document.getElementById('query').value.trim();
                const serviceType = document.getElementById('service-type').value;

                const params = new URLSearchParams();
                if (query) params.set('q', query);
                if (serviceType) params.set('service_type', serviceType);
                params.set('limit', '50');

                searchBtn.disabled = true;
                searchBtn.innerHTML = '<span class="spinner"></span>';

                try {
                    const response = await fetch('/api/v1/layers?' + params.toString());
                    const data = await response.json();

                    if (!response.ok) {
                        results.innerHTML = renderMessage('error', data.error || 'Search failed');
                        return;
                    }

                    if (!data.layers || data.layers.length === 0) {
                        results.innerHTML = '<div class="empty-state">No layers match. Register a service via POST /api/v1/services.</div>';
                        return;
                    }

                    let html = '';
                    for (const layer of data.layers) {
                        html += renderLayer(layer);
                    }
                    results.innerHTML = html;
                } catch (err) {
                    results.innerHTML = renderMessage('error', 'Request failed: ' + err.message);
                } finally {
                    searchBtn.disabled = false;
                    searchBtn.textContent = 'Search';
                }
            }

            function renderLayer(layer) {
                const type = (layer.service_type || '').toLowerCase();
                let html = '<div class="layer">';
                html += '<div class="layer-header">';
                html += '<span class="layer-title">' + escapeHtml(layer.layer_title || layer.layer_name) + '</span>';
                html += '<span class="badge badge-' + escapeHtml(type) + '">' + escapeHtml(layer.service_type || '') + '</span>';
                html += '</div>';
                html += '<div class="layer-name">' + escapeHtml(layer.layer_name || '') + '</div>';

                if (layer.layer_abstract) {
                    const abstract = layer.layer_abstract;
                    html += '<div class="layer-abstract">' + escapeHtml(abstract.length > 240 ? abstract.substring(0, 240) + '&hellip;' : abstract) + '</div>';
                }

                html += '<div class="layer-meta">' + escapeHtml(layer.service_name || '') + ' &middot; ' + escapeHtml(layer.service_url || '') + '</div>';

                html += '<div class="layer-actions">';
                html += '<button class="secondary" data-action="resolve" data-id="' + escapeHtml(layer.resource_id) + '">Resolve</button>';
                html += '<button data-action="preview" data-id="' + escapeHtml(layer.resource_id) + '">Preview</button>';
                html += '</div>';
                html += '<div class="layer-detail" id="detail-' + escapeHtml(layer.resource_id) + '"></div>';
                html += '</div>';
                return html;
            }

            async function resolveLayer(id, btn) {
                const detail = document.getElementById('detail-' + id);
                btn.disabled = true;

                try {
                    const response = await fetch('/api/v1/resolve', {
                        method: 'POST',
                        headers: { 'Content-Type': 'application/json' },
                        body: JSON.stringify({ layer: id })
                    });
                    const data = await response.json();

                    if (!response.ok) {
                        detail.innerHTML = renderMessage('error', data.message || data.error || 'Resolve failed');
                        return;
                    }

                    let html = '<table class="params-table">';
                    html += '<tr><th>kind</th><td>' + escapeHtml(data.kind) + '</td></tr>';
                    const keys = Object.keys(data.params || {}).sort();
                    for (const key of keys) {
                        html += '<tr><th>' + escapeHtml(key) + '</th><td>' + escapeHtml(data.params[key]) + '</td></tr>';
                    }
                    html += '</table>';
                    detail.innerHTML = html;
                } catch (err) {
                    detail.innerHTML = renderMessage('error', 'Request failed: ' + err.message);
                } finally {
                    btn.disabled = false;
                }
            }

            async function previewLayer(id, btn) {
                const detail = document.getElementById('detail-' + id);
                btn.disabled = true;
                btn.innerHTML = '<span class="spinner"></span>';

                try {
                    const response = await fetch('/api/v1/preview', {
                        method: 'POST',
                        headers: { 'Content-Type': 'application/json' },
                        body: JSON.stringify({ layer: id })
                    });
                    const data = await response.json();

                    if (!response.ok) {
                        detail.innerHTML = renderMessage('error', data.message || data.error || 'Preview failed');
                        return;
                    }

                    detail.innerHTML = await renderArtifact(data);
                } catch (err) {
                    detail.innerHTML = renderMessage('error', 'Request failed: ' + err.message);
                } finally {
                    btn.disabled = false;
                    btn.textContent = 'Preview';
                }
            }

            async function renderArtifact(artifact) {
                const contentType = artifact.content_type || '';
                if (contentType.indexOf('image/') === 0) {
                    return '<div class="preview-box"><img src="' + escapeHtml(artifact.url) + '" alt="Preview"></div>';
                }

                try {
                    const response = await fetch(artifact.url);
                    const text = await response.text();
                    const snippet = text.length > 4000 ? text.substring(0, 4000) + '…' : text;
                    return '<div class="preview-box"><pre>' + escapeHtml(snippet) + '</pre></div>';
                } catch (err) {
                    return renderMessage('info', 'Artifact staged at ' + artifact.url);
                }
            }

            function renderMessage(kind, text) {
                return '<div class="message message-' + kind + '">' + escapeHtml(text) + '</div>';
            }

            function escapeHtml(str) {
                if (!str) return '';
                return String(str)
                    .replace(/&/g, '&amp;')
                    .replace(/</g, '&lt;')
                    .replace(/>/g, '&gt;')
                    .replace(/"/g, '&quot;')
                    .replace(/'/g, '&#39;');
            }
        })();
    </script>
</body>
</html>`

// handleFrontend serves the layer registry frontend.
func (s *Server) handleFrontend(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(frontendHTML))
}
