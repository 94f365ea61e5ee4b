// Package handler exposes the pipeline over HTTP for the dashboard.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	waLog "go.mau.fi/whatsmeow/util/log"

	"syncnexus/internal/data/store"
	"syncnexus/internal/infra/fault"
	"syncnexus/internal/service/nexus"
	"syncnexus/internal/service/triage"
)

// API serves the dashboard endpoints.
type API struct {
	nexus *nexus.Nexus
	log   waLog.Logger
}

// NewAPI creates an API.
func NewAPI(n *nexus.Nexus, log waLog.Logger) *API {
	return &API{nexus: n, log: log.Sub("API")}
}

// Router builds the gin engine with every route registered.
func (a *API) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), a.accessLog())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	{
		api.GET("/stats", a.stats)
		api.GET("/logs", a.logs)

		api.GET("/contacts", a.listContacts)
		api.GET("/contacts/:id", a.getContact)
		api.POST("/contacts/:id/enrich", a.enrichContact)

		api.GET("/groups", a.listGroups)
		api.POST("/groups/sync", a.syncGroups)
		api.POST("/groups/monitored/sync", a.syncMonitored)
		api.PATCH("/groups/:jid", a.updateGroup)
		api.POST("/groups/:jid/members/sync", a.syncMembers)
		api.POST("/groups/:jid/history/sync", a.syncHistory)

		api.GET("/messages", a.listMessages)
		api.GET("/messages/:id/analysis", a.getAnalysis)
		api.POST("/messages/:id/analyze", a.analyzeMessage)

		api.GET("/queue", a.listQueue)
		api.POST("/queue/:id/deploy", a.deployEntry)
		api.DELETE("/queue/:id", a.archiveEntry)

		api.GET("/costs", a.costs)
		api.POST("/costs/reset", a.resetCosts)

		api.GET("/settings", a.getSettings)
		api.PUT("/settings", a.putSettings)
	}
	return r
}

func (a *API) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Debugf("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// fail maps an error to a status code and writes it.
func (a *API) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case fault.Is(err, fault.KindConfig):
		status = http.StatusServiceUnavailable
	case fault.Is(err, fault.KindTransport), fault.Is(err, fault.KindGatewayPayload),
		fault.Is(err, fault.KindModel), fault.Is(err, fault.KindParse):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		a.log.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": fault.KindOf(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// =============================================================================
// Reads
// =============================================================================

func (a *API) stats(c *gin.Context) {
	s, err := a.nexus.Stats()
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *API) logs(c *gin.Context) {
	c.JSON(http.StatusOK, a.nexus.Logs())
}

func (a *API) listContacts(c *gin.Context) {
	contacts, err := a.nexus.Contacts()
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, contacts)
}

func (a *API) getContact(c *gin.Context) {
	contact, err := a.nexus.Contact(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (a *API) getAnalysis(c *gin.Context) {
	analysis, err := a.nexus.Analysis(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (a *API) listGroups(c *gin.Context) {
	groups, err := a.nexus.Groups()
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (a *API) listMessages(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		badRequest(c, err)
		return
	}
	msgs, err := a.nexus.Messages(c.Query("chat"), limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (a *API) listQueue(c *gin.Context) {
	entries, err := a.nexus.Queue()
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (a *API) costs(c *gin.Context) {
	c.JSON(http.StatusOK, a.nexus.Costs())
}

func (a *API) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, a.nexus.Settings().Get())
}

// =============================================================================
// Writes
// =============================================================================

func (a *API) enrichContact(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	out, err := a.nexus.Enrich(c.Request.Context(), c.Param("id"), force)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) syncGroups(c *gin.Context) {
	instance, err := strconv.Atoi(c.DefaultQuery("instance", "0"))
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := a.nexus.SyncGroups(c.Request.Context(), instance)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) syncMonitored(c *gin.Context) {
	res, err := a.nexus.SyncMonitored(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) syncMembers(c *gin.Context) {
	res, err := a.nexus.SyncMembers(c.Request.Context(), c.Param("jid"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) syncHistory(c *gin.Context) {
	res, err := a.nexus.SyncHistory(c.Request.Context(), c.Param("jid"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// updateGroup applies a partial preference update on top of the stored prefs.
func (a *API) updateGroup(c *gin.Context) {
	g, err := a.nexus.Group(c.Param("jid"))
	if err != nil {
		a.fail(c, err)
		return
	}
	prefs := g.GroupPrefs
	if err := c.ShouldBindJSON(&prefs); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := a.nexus.UpdateGroupPrefs(g.JID, prefs)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *API) analyzeMessage(c *gin.Context) {
	res, err := a.nexus.Analyze(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type deployRequest struct {
	Channel string `json:"channel"`
}

func (a *API) deployEntry(c *gin.Context) {
	var req deployRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Channel == "" {
		req.Channel = c.DefaultQuery("channel", string(triage.ChannelDM))
	}
	channel, err := triage.ParseChannel(req.Channel)
	if err != nil {
		badRequest(c, err)
		return
	}

	ok, err := a.nexus.Deploy(c.Request.Context(), c.Param("id"), channel)
	if err != nil {
		a.fail(c, err)
		return
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"delivered": ok})
}

func (a *API) archiveEntry(c *gin.Context) {
	if err := a.nexus.Archive(c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) resetCosts(c *gin.Context) {
	a.nexus.ResetCosts()
	c.JSON(http.StatusOK, a.nexus.Costs())
}

func (a *API) putSettings(c *gin.Context) {
	next := a.nexus.Settings().Get()
	if err := c.ShouldBindJSON(&next); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.nexus.Settings().Replace(next); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, next)
}
