package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DeleteClientMetrics drops the series of clients that left the board file
func DeleteClientMetrics(clients []string) {
	for _, c := range clients {
		ClientState.Delete(prometheus.Labels{"board": BoardName, "client": c})
	}
}
