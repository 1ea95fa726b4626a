package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency     = metric.NewHistogram("1m1s")
	SentPacketPerSecond = metric.NewCounter("10s1s")
	RecvPacketPerSecond = metric.NewCounter("10s1s")
	SentBytesPerSecond  = metric.NewCounter("10s1s")
	RecvBytesPerSecond  = metric.NewCounter("10s1s")
	DioSent             = metric.NewCounter("1m10s")
	DisSent             = metric.NewCounter("1m10s")
	DaoSent             = metric.NewCounter("1m10s")
	DaoAckSent          = metric.NewCounter("1m10s")
	TrickleResets       = metric.NewCounter("1m10s")
	DecodeErrors        = metric.NewCounter("1m10s")
	DaoExhausted        = metric.NewCounter("10m1m")
	ResourceExhausted   = metric.NewCounter("10m1m")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("rpld:SentPacket/s", SentPacketPerSecond)
	expvar.Publish("rpld:RecvPacket/s", RecvPacketPerSecond)
	expvar.Publish("rpld:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("rpld:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("rpld:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("rpld:DioSent", DioSent)
	expvar.Publish("rpld:DisSent", DisSent)
	expvar.Publish("rpld:DaoSent", DaoSent)
	expvar.Publish("rpld:DaoAckSent", DaoAckSent)
	expvar.Publish("rpld:TrickleResets", TrickleResets)
	expvar.Publish("rpld:DecodeErrors", DecodeErrors)
	expvar.Publish("rpld:DaoExhausted", DaoExhausted)
	expvar.Publish("rpld:ResourceExhausted", ResourceExhausted)
}
