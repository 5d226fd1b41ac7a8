package handlers

import (
	"html/template"
	"net/http"
)

// DashboardPage serves the interactive dashboard HTML page. Rendering is
// done client-side against the JSON API; map tiles and Leaflet come from
// public CDNs.
func DashboardPage(w http.ResponseWriter, r *http.Request) {
	tmpl := `<!DOCTYPE html>
<html lang="es">
<head>
    <meta charset="UTF-8">
    <title>Incidentes de Tránsito</title>
    <link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
    <style>
        body { margin: 0; font-family: sans-serif; background: #fafafa; color: #222; }
        header { padding: 16px 24px; background: teal; color: white; }
        main { padding: 16px 24px; max-width: 1100px; margin: 0 auto; }
        .metrics { display: flex; gap: 16px; margin: 16px 0; }
        .metric { flex: 1; background: white; border: 1px solid #ddd; border-radius: 6px; padding: 16px; text-align: center; }
        .metric .value { font-size: 2em; font-weight: bold; }
        #map { height: 420px; border: 1px solid #ddd; border-radius: 6px; }
        .bar-row { display: flex; align-items: center; margin: 4px 0; }
        .bar-label { width: 220px; font-size: 0.85em; text-align: right; padding-right: 8px; white-space: nowrap; overflow: hidden; text-overflow: ellipsis; }
        .bar { background: teal; height: 18px; border-radius: 2px; }
        .bar-count { padding-left: 6px; font-size: 0.85em; }
        table { border-collapse: collapse; width: 100%; background: white; }
        th, td { border: 1px solid #ddd; padding: 6px 10px; font-size: 0.85em; text-align: left; }
        th { background: #f0f0f0; }
        select { min-width: 260px; min-height: 90px; }
        .notice { background: #fff4e0; border: 1px solid #e0c080; padding: 12px; border-radius: 6px; }
        .hidden { display: none; }
    </style>
</head>
<body>
    <header><h1>Incidentes de Tránsito</h1></header>
    <main>
        <div id="notice" class="notice hidden"></div>
        <section>
            <label for="type-filter"><strong>Tipo de Incidente</strong> (vacío = todos)</label><br>
            <select id="type-filter" multiple></select>
            <button id="clear-filter">Limpiar</button>
        </section>
        <section class="metrics">
            <div class="metric"><div class="value" id="m-incidents">–</div>Incidentes</div>
            <div class="metric"><div class="value" id="m-injured">–</div>Lesionados</div>
            <div class="metric"><div class="value" id="m-fatalities">–</div>Muertos</div>
        </section>
        <section>
            <h2>Localización</h2>
            <div id="map"></div>
        </section>
        <section>
            <h2>Top 10 Colonias</h2>
            <div id="bars"></div>
        </section>
        <section>
            <h2>Datos Detallados</h2>
            <label><input type="checkbox" id="show-table"> Mostrar tabla</label>
            <div id="table-wrap" class="hidden">
                <table>
                    <thead><tr>
                        <th>Fecha</th><th>Estado del Caso</th><th>Agravante</th><th>Tipo</th>
                        <th>Colonia</th><th>Calle</th><th>Lesionados</th><th>Muertos</th>
                    </tr></thead>
                    <tbody id="table-body"></tbody>
                </table>
            </div>
        </section>
    </main>
    <script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
    <script>
        let map = null;
        let markerLayer = null;

        function selectedTypes() {
            const sel = document.getElementById('type-filter');
            return Array.from(sel.selectedOptions).map(o => o.value);
        }

        function query() {
            const types = selectedTypes();
            return types.length ? '?types=' + encodeURIComponent(types.join(',')) : '';
        }

        async function fetchJSON(path) {
            const res = await fetch(path);
            const body = await res.json();
            if (!res.ok) { throw new Error(body.message || 'unexpected error'); }
            return body;
        }

        function showNotice(msg) {
            const el = document.getElementById('notice');
            el.textContent = msg;
            el.classList.remove('hidden');
        }

        async function refresh() {
            const q = query();
            const metrics = await fetchJSON('/api/incidents/metrics' + q);
            document.getElementById('m-incidents').textContent = metrics.incidents.toLocaleString();
            document.getElementById('m-injured').textContent = metrics.injured.toLocaleString();
            document.getElementById('m-fatalities').textContent = metrics.fatalities.toLocaleString();

            const mapData = await fetchJSON('/api/incidents/map' + q);
            if (!map) {
                map = L.map('map');
                L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
                    attribution: '&copy; OpenStreetMap'
                }).addTo(map);
                markerLayer = L.layerGroup().addTo(map);
            }
            markerLayer.clearLayers();
            const bounds = [];
            for (const p of mapData.points) {
                L.circleMarker([p.lat, p.lon], { radius: 4, color: 'teal' }).addTo(markerLayer);
                bounds.push([p.lat, p.lon]);
            }
            if (bounds.length) { map.fitBounds(bounds); } else { map.setView([19.04, -98.2], 11); }

            const top = await fetchJSON('/api/incidents/top' + (q ? q + '&' : '?') + 'column=neighborhood&n=10');
            const bars = document.getElementById('bars');
            bars.innerHTML = '';
            const max = Math.max(1, ...top.entries.map(e => e.count));
            for (const e of top.entries.slice().reverse()) {
                const row = document.createElement('div');
                row.className = 'bar-row';
                row.innerHTML = '<div class="bar-label">' + e.value + '</div>' +
                    '<div class="bar" style="width:' + Math.round(500 * e.count / max) + 'px"></div>' +
                    '<div class="bar-count">' + e.count + '</div>';
                bars.appendChild(row);
            }

            const detail = await fetchJSON('/api/incidents' + (q ? q + '&' : '?') + 'limit=100');
            const tbody = document.getElementById('table-body');
            tbody.innerHTML = '';
            for (const row of detail.data) {
                const tr = document.createElement('tr');
                for (const v of [row.date || '', row.case_status, row.aggravating_factor,
                                 row.incident_type, row.neighborhood, row.street,
                                 row.injured, row.fatalities]) {
                    const td = document.createElement('td');
                    td.textContent = v;
                    tr.appendChild(td);
                }
                tbody.appendChild(tr);
            }
        }

        async function init() {
            try {
                const res = await fetchJSON('/api/incidents/types');
                const sel = document.getElementById('type-filter');
                for (const t of res.types) {
                    const opt = document.createElement('option');
                    opt.value = t;
                    opt.textContent = t;
                    sel.appendChild(opt);
                }
                sel.addEventListener('change', () => refresh().catch(e => showNotice(e.message)));
                document.getElementById('clear-filter').addEventListener('click', () => {
                    for (const o of sel.options) { o.selected = false; }
                    refresh().catch(e => showNotice(e.message));
                });
                document.getElementById('show-table').addEventListener('change', (ev) => {
                    document.getElementById('table-wrap').classList.toggle('hidden', !ev.target.checked);
                });
                await refresh();
            } catch (e) {
                showNotice(e.message);
            }
        }

        window.onload = init;
    </script>
</body>
</html>`

	t := template.Must(template.New("dashboard").Parse(tmpl))
	w.Header().Set("Content-Type", "text/html")
	t.Execute(w, nil)
}
