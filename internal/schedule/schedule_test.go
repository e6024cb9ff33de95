package schedule

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/blunan/Stratos/internal/addr"
	"github.com/blunan/Stratos/internal/results"
	"github.com/blunan/Stratos/internal/wire"
)

func resp(a addr.Address, hop byte, dist int32) wire.SearchResponse {
	return wire.SearchResponse{
		ResponderAddress: a,
		HopDistance:      hop,
		OfferedService:   wire.OfferedService{Name: "printer", SemanticDistance: dist},
	}
}

func TestBuildScheduleBoundedAndSameSemanticDistance(t *testing.T) {
	responses := []wire.SearchResponse{
		resp(1, 2, 5),
		resp(2, 1, 3),
		resp(3, 1, 3),
		resp(4, 1, 3),
		resp(5, 1, 7),
	}
	sched := BuildSchedule(responses, 3)
	require.Len(t, sched, 3)
	for _, s := range sched {
		require.Equal(t, int32(3), s.OfferedService.SemanticDistance)
	}
}

func TestBuildScheduleStopsAtWorseDistance(t *testing.T) {
	responses := []wire.SearchResponse{
		resp(1, 1, 3),
		resp(2, 1, 9),
	}
	sched := BuildSchedule(responses, 3)
	require.Len(t, sched, 1)
}

func TestBuildScheduleEmptyInput(t *testing.T) {
	require.Nil(t, BuildSchedule(nil, 3))
}

func TestExecuteSplitsPacketsWithRemainderOnFirst(t *testing.T) {
	var started []struct {
		peer    addr.Address
		packets int
	}
	collector := results.New(prometheus.NewRegistry())
	e := New(3, func(peer addr.Address, service string, packets int) {
		started = append(started, struct {
			peer    addr.Address
			packets int
		}{peer, packets})
	}, collector, logrus.NewEntry(logrus.New()))

	responses := []wire.SearchResponse{resp(1, 1, 3), resp(2, 1, 3), resp(3, 1, 3)}
	e.Execute("printer", responses, 10) // 10/3 = 3 remainder 1 -> first gets 4
	require.Len(t, started, 1)
	require.Equal(t, 4, started[0].packets)

	e.Continue()
	require.Len(t, started, 2)
	require.Equal(t, 3, started[1].packets)

	e.Continue()
	require.Len(t, started, 3)
	require.Equal(t, 3, started[2].packets)

	e.Continue() // nothing left
	require.Len(t, started, 3)
}
