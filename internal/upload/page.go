package upload

// indexPage is the single-page upload UI served at "/". Kept inline so the
// binary stays self-contained on the device's read-only rootfs.
const indexPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>PagerAmp</title>
<style>
  body { font-family: sans-serif; max-width: 640px; margin: 2em auto; padding: 0 1em; background: #1a1a1a; color: #ddd; }
  h1 { color: #7fd962; }
  #drop { border: 2px dashed #555; border-radius: 8px; padding: 2em; text-align: center; margin-bottom: 1em; }
  #drop.hover { border-color: #7fd962; }
  table { width: 100%; border-collapse: collapse; }
  td, th { padding: 0.4em; border-bottom: 1px solid #333; text-align: left; }
  button { background: #333; color: #ddd; border: 1px solid #555; border-radius: 4px; cursor: pointer; }
  #status { color: #888; min-height: 1.2em; }
</style>
</head>
<body>
<h1>PagerAmp</h1>
<div id="drop">Drop music files here or <input type="file" id="picker" multiple accept=".mp3,.wav,.m3u"></div>
<p id="status"></p>
<table><thead><tr><th>Track</th><th>Size</th><th></th></tr></thead><tbody id="library"></tbody></table>
<script>
const status = document.getElementById('status');
const drop = document.getElementById('drop');

async function refresh() {
  const res = await fetch('/api/library');
  const tracks = await res.json();
  const tbody = document.getElementById('library');
  tbody.innerHTML = '';
  for (const t of tracks) {
    const tr = document.createElement('tr');
    const del = document.createElement('button');
    del.textContent = 'delete';
    del.onclick = async () => {
      await fetch('/api/delete', {method: 'POST', headers: {'Content-Type': 'application/json'}, body: JSON.stringify({name: t.name})});
    };
    const nameTd = document.createElement('td');
    nameTd.textContent = t.name;
    const sizeTd = document.createElement('td');
    sizeTd.textContent = t.size_str;
    const delTd = document.createElement('td');
    delTd.appendChild(del);
    tr.append(nameTd, sizeTd, delTd);
    tbody.appendChild(tr);
  }
}

async function upload(files) {
  for (const file of files) {
    status.textContent = 'Uploading ' + file.name + '...';
    const form = new FormData();
    form.append('file', file);
    const res = await fetch('/upload', {method: 'POST', body: form});
    if (!res.ok) {
      const err = await res.json().catch(() => ({}));
      status.textContent = 'Failed: ' + (err.error || res.statusText);
      return;
    }
  }
  status.textContent = 'Done';
}

drop.addEventListener('dragover', e => { e.preventDefault(); drop.classList.add('hover'); });
drop.addEventListener('dragleave', () => drop.classList.remove('hover'));
drop.addEventListener('drop', e => { e.preventDefault(); drop.classList.remove('hover'); upload(e.dataTransfer.files); });
document.getElementById('picker').addEventListener('change', e => upload(e.target.files));

const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = e => {
  for (const line of e.data.split('\n')) {
    try {
      const msg = JSON.parse(line);
      if (msg.event === 'library_updated') refresh();
      if (msg.event === 'bluetooth_state' && msg.data) status.textContent = msg.data.status || '';
    } catch {}
  }
};

refresh();
</script>
</body>
</html>
`
