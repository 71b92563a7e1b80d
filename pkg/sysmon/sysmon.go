// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package sysmon

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"watches/pkg/logger"
)

// Snapshot is one reading of host and process resources. Fields that could
// not be read are left zero.
type Snapshot struct {
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`

	SystemCPUPercent  float64 `json:"system_cpu_percent"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`

	MemTotal   uint64 `json:"mem_total"`
	MemUsed    uint64 `json:"mem_used"`
	MemFree    uint64 `json:"mem_free"`
	ProcessRSS uint64 `json:"process_rss"`

	DiskTotal uint64 `json:"disk_total"`
	DiskUsed  uint64 `json:"disk_used"`
	DiskFree  uint64 `json:"disk_free"`
}

type Service struct {
	log  *logger.Logger
	disk string
	proc *process.Process

	descs map[string]*prometheus.Desc
}

// New watches the filesystem holding disk.
func New(disk string) *Service {
	s := &Service{
		log:  logger.New("System Monitor"),
		disk: disk,
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.log.Warn("process stats unavailable: %v", err)
	} else {
		s.proc = p
	}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("watches_host_"+name, help, nil, nil)
	}
	s.descs = map[string]*prometheus.Desc{
		"cpu":      desc("cpu_percent", "System-wide CPU utilisation."),
		"mem_used": desc("memory_used_bytes", "System memory in use."),
		"rss":      desc("process_resident_bytes", "Resident memory of this process."),
		"disk":     desc("disk_used_bytes", "Bytes used on the monitored filesystem."),
	}
	return s
}

func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.SystemCPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemTotal, snap.MemUsed, snap.MemFree = vm.Total, vm.Used, vm.Available
	}
	if total, free, used, err := DiskUsage(s.disk); err == nil {
		snap.DiskTotal, snap.DiskFree, snap.DiskUsed = total, free, used
	}
	if s.proc != nil {
		if mi, err := s.proc.MemoryInfo(); err == nil {
			snap.ProcessRSS = mi.RSS
		}
		if pct, err := s.proc.CPUPercent(); err == nil {
			snap.ProcessCPUPercent = pct
		}
	}
	return snap
}

func (s *Service) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range s.descs {
		ch <- d
	}
}

func (s *Service) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()
	ch <- prometheus.MustNewConstMetric(s.descs["cpu"], prometheus.GaugeValue, snap.SystemCPUPercent)
	ch <- prometheus.MustNewConstMetric(s.descs["mem_used"], prometheus.GaugeValue, float64(snap.MemUsed))
	ch <- prometheus.MustNewConstMetric(s.descs["rss"], prometheus.GaugeValue, float64(snap.ProcessRSS))
	ch <- prometheus.MustNewConstMetric(s.descs["disk"], prometheus.GaugeValue, float64(snap.DiskUsed))
}

const gib = 1 << 30
const mib = 1 << 20

var page = template.Must(template.New("sysmon").Funcs(template.FuncMap{
	"gb": func(v uint64) string { return fmt.Sprintf("%.2f GB", float64(v)/gib) },
	"mb": func(v uint64) string { return fmt.Sprintf("%.2f MB", float64(v)/mib) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		table { border-collapse: collapse; width: 60%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>System Monitor</h1>
	<p>{{.GoVersion}}, {{.Goroutines}} goroutines</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %</th><th>Process %</th></tr>
		<tr><td>{{printf "%.2f" .SystemCPUPercent}}</td><td>{{printf "%.2f" .ProcessCPUPercent}}</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>System Total</th><th>System Used</th><th>System Free</th><th>Process RSS</th></tr>
		<tr><td>{{gb .MemTotal}}</td><td>{{gb .MemUsed}}</td><td>{{gb .MemFree}}</td><td>{{mb .ProcessRSS}}</td></tr>
	</table>
	<h2>Disk</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th></tr>
		<tr><td>{{gb .DiskTotal}}</td><td>{{gb .DiskUsed}}</td><td>{{gb .DiskFree}}</td></tr>
	</table>
</body>
</html>
`))

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := s.Snapshot()

	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, snap); err != nil {
		s.log.Error("render: %v", err)
	}
}
