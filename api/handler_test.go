package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-yogan-canary/canary"
	"github.com/KOMKZ/go-yogan-canary/injector"
	"github.com/KOMKZ/go-yogan-canary/logger"
	"github.com/KOMKZ/go-yogan-canary/metrics"
	"github.com/KOMKZ/go-yogan-canary/rollback"
	"github.com/KOMKZ/go-yogan-canary/scheduler"
	"github.com/KOMKZ/go-yogan-canary/testutil"
)

type apiFixture struct {
	engine  *gin.Engine
	dep     *canary.Deployer
	coll    metrics.Collector
	history rollback.History
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clockwork.NewFakeClock()
	sched := scheduler.NewManual()
	router := canary.NewRouter(nil)
	history := rollback.NewMemoryHistory(64)

	coll, err := metrics.NewCollector(metrics.Config{},
		metrics.WithClock(clk), metrics.WithLogger(logger.NewNop()))
	require.NoError(t, err)

	inj, err := injector.New(injector.Config{},
		injector.WithClock(clk),
		injector.WithLogger(logger.NewNop()),
		injector.WithTrafficDecider(router))
	require.NoError(t, err)

	dep, err := canary.NewDeployer(canary.Config{}, coll, inj, router, sched, history,
		canary.WithDeployerClock(clk), canary.WithDeployerLogger(logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = dep.Close()
		_ = sched.Close()
	})

	engine := gin.New()
	NewHandler(dep, inj, coll, history).Register(engine)
	return &apiFixture{engine: engine, dep: dep, coll: coll, history: history}
}

func (f *apiFixture) deploy(t *testing.T, route string) string {
	t.Helper()
	patch := injector.HandlerPatch{ID: "p-" + route, Name: "patch", TargetRoute: route}
	callable := func(c *gin.Context, next func()) { next() }
	plan := canary.Plan{
		Stages: []canary.Stage{
			{Percentage: 10, Duration: time.Minute},
			{Percentage: 100, Duration: time.Minute},
		},
	}
	id, err := f.dep.Deploy(context.Background(), patch, callable, plan)
	require.NoError(t, err)
	return id
}

func TestAPI_Deployments(t *testing.T) {
	f := newAPIFixture(t)
	id := f.deploy(t, "/api/orders")

	t.Run("列表", func(t *testing.T) {
		resp := testutil.NewRequest(http.MethodGet, "/canary/deployments").Do(f.engine)
		require.True(t, resp.IsOK())

		var body struct {
			Code int             `json:"code"`
			Data []canary.Status `json:"data"`
		}
		require.NoError(t, resp.JSON(&body))
		require.Len(t, body.Data, 1)
		assert.Equal(t, id, body.Data[0].ID)
		assert.Equal(t, "Deploying", body.Data[0].State)
	})

	t.Run("单部署查询", func(t *testing.T) {
		resp := testutil.NewRequest(http.MethodGet, "/canary/deployments/"+id).Do(f.engine)
		require.True(t, resp.IsOK())

		var body struct {
			Data canary.Status `json:"data"`
		}
		require.NoError(t, resp.JSON(&body))
		assert.Equal(t, "/api/orders", body.Data.Route)
		assert.Equal(t, 10, body.Data.TrafficPercentage)
	})

	t.Run("未知部署返回 404", func(t *testing.T) {
		resp := testutil.NewRequest(http.MethodGet, "/canary/deployments/nope").Do(f.engine)
		assert.Equal(t, http.StatusNotFound, resp.Code())
	})

	t.Run("事件日志", func(t *testing.T) {
		resp := testutil.NewRequest(http.MethodGet, "/canary/deployments/"+id+"/events").Do(f.engine)
		require.True(t, resp.IsOK())

		var body struct {
			Data []canary.Event `json:"data"`
		}
		require.NoError(t, resp.JSON(&body))
		require.NotEmpty(t, body.Data)
		assert.Equal(t, canary.EventDeploymentStarted, body.Data[0].Type)
	})
}

func TestAPI_ManualRollback(t *testing.T) {
	f := newAPIFixture(t)
	id := f.deploy(t, "/api/orders")

	resp := testutil.NewRequest(http.MethodPost, "/canary/deployments/"+id+"/rollback").
		WithJSON(map[string]string{"reason": "operator says no"}).
		Do(f.engine)
	require.True(t, resp.IsOK())

	st, err := f.dep.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, "Failed", st.State)
	assert.Equal(t, "operator says no", st.FailureReason)

	// 回滚历史可查，含手动来源
	require.Eventually(t, func() bool {
		resp := testutil.NewRequest(http.MethodGet, "/canary/rollbacks").Do(f.engine)
		var body struct {
			Data []rollback.Record `json:"data"`
		}
		if err := resp.JSON(&body); err != nil {
			return false
		}
		return len(body.Data) == 1 && body.Data[0].Source == rollback.SourceManual
	}, time.Second, 5*time.Millisecond)
}

func TestAPI_EmergencyRollback(t *testing.T) {
	f := newAPIFixture(t)
	f.deploy(t, "/api/a")
	f.deploy(t, "/api/b")

	resp := testutil.NewRequest(http.MethodPost, "/canary/emergency-rollback").Do(f.engine)
	require.True(t, resp.IsOK())

	assert.Empty(t, f.dep.ListActive())
}

func TestAPI_InjectionsAndMetrics(t *testing.T) {
	f := newAPIFixture(t)
	f.deploy(t, "/api/orders")
	for i := 0; i < 10; i++ {
		f.coll.RecordSample("/api/orders", metrics.Sample{Status: metrics.StatusSuccess, LatencyMs: 50})
	}

	t.Run("注入统计", func(t *testing.T) {
		resp := testutil.NewRequest(http.MethodGet, "/canary/injections/stats").Do(f.engine)
		require.True(t, resp.IsOK())

		var body struct {
			Data injector.Stats `json:"data"`
		}
		require.NoError(t, resp.JSON(&body))
		assert.Equal(t, 1, body.Data.ActiveCount)
	})

	t.Run("注入列表", func(t *testing.T) {
		resp := testutil.NewRequest(http.MethodGet, "/canary/injections").Do(f.engine)
		require.True(t, resp.IsOK())

		var body struct {
			Data []injector.InjectionInfo `json:"data"`
		}
		require.NoError(t, resp.JSON(&body))
		require.Len(t, body.Data, 1)
		assert.Equal(t, "/api/orders", body.Data[0].Patch.TargetRoute)
	})

	t.Run("指标快照", func(t *testing.T) {
		resp := testutil.NewRequest(http.MethodGet, "/canary/metrics").
			WithQuery("route", "/api/orders").
			WithQuery("window", "60s").
			Do(f.engine)
		require.True(t, resp.IsOK())

		var body struct {
			Data metrics.Snapshot `json:"data"`
		}
		require.NoError(t, resp.JSON(&body))
		assert.Equal(t, 10, body.Data.SampleSize)
		assert.InDelta(t, 1.0, body.Data.SuccessRate, 1e-9)
	})

	t.Run("缺少路由参数返回 400", func(t *testing.T) {
		resp := testutil.NewRequest(http.MethodGet, "/canary/metrics").Do(f.engine)
		assert.Equal(t, http.StatusBadRequest, resp.Code())
	})

	t.Run("非法 limit 返回 400", func(t *testing.T) {
		resp := testutil.NewRequest(http.MethodGet, "/canary/rollbacks").
			WithQuery("limit", "-1").
			Do(f.engine)
		assert.Equal(t, http.StatusBadRequest, resp.Code())
	})
}
