package httpapi

import (
	"soapbox/internal/campaigns"
	"soapbox/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the /v1 API. requireAuth rejects anonymous callers;
// optionalAuth lets them through as the anonymous subject (PUBLIC objects, region lookup).
func (h Handlers) Register(r gin.IRouter, requireAuth, optionalAuth gin.HandlerFunc) {
	v1 := r.Group("/v1")

	// public
	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/refresh", h.Refresh)
	v1.POST("/users", h.CreateUser)

	open := v1.Group("")
	open.Use(optionalAuth)
	{
		open.GET("/access/:kind/:id", h.CheckAccess)
		open.GET("/regions/resolve", h.ResolveRegion)
		open.GET("/regions", h.ListRegions)
		open.GET("/regions/:id", h.GetRegion)
		open.GET("/regions/:id/ranges", h.ListRanges)

		registerKind(open.Group("/scripts"), h, kindOps[campaigns.ScriptContent, campaigns.Script]{
			kind: campaigns.KindScript, create: h.Campaigns.CreateScript, get: h.Campaigns.GetScript,
			update: h.Campaigns.UpdateScript, list: h.Campaigns.ListScripts,
		})
		registerKind(open.Group("/questions"), h, kindOps[campaigns.QuestionContent, campaigns.Question]{
			kind: campaigns.KindQuestion, create: h.Campaigns.CreateQuestion, get: h.Campaigns.GetQuestion,
			update: h.Campaigns.UpdateQuestion, list: h.Campaigns.ListQuestions,
		})
		registerKind(open.Group("/prompts"), h, kindOps[campaigns.PromptContent, campaigns.Prompt]{
			kind: campaigns.KindPrompt, create: h.Campaigns.CreatePrompt, get: h.Campaigns.GetPrompt,
			update: h.Campaigns.UpdatePrompt, list: h.Campaigns.ListPrompts,
		})
		camps := open.Group("/campaigns")
		registerKind(camps, h, kindOps[campaigns.CampaignContent, campaigns.Campaign]{
			kind: campaigns.KindCampaign, create: h.Campaigns.CreateCampaign, get: h.Campaigns.GetCampaign,
			update: h.Campaigns.UpdateCampaign, list: h.Campaigns.ListCampaigns,
		})
		camps.GET("/:id/calls", h.ListCampaignCalls)
		camps.GET("/:id/results", h.ListCampaignResults)
		camps.GET("/:id/summary", h.CampaignSummary)
		camps.GET("/:id/questions/:question_id/tally", h.QuestionTally)

		open.GET("/numbers", h.ListNumbers)
		open.GET("/numbers/:id", h.GetNumber)
		open.GET("/calls/:id", h.GetCall)
		open.GET("/results/:id", h.GetResult)
	}

	authed := v1.Group("")
	authed.Use(requireAuth)
	{
		authed.GET("/me", h.Me)
		authed.GET("/users/:id", h.GetUser)

		authed.POST("/groups", h.CreateGroup)
		groups := authed.Group("/groups/:id")
		groups.Use(rbac.RequireGroupRole("id", GroupRoles, rbac.RoleMember))
		{
			groups.GET("", h.GetGroup)
			groups.POST("/roles", h.AddRole)
			groups.DELETE("/roles/:user_id/:role", h.RemoveRole)
		}

		authed.POST("/regions", h.CreateRegion)
		authed.POST("/regions/:id/ranges", h.AddRange)

		authed.POST("/numbers", h.CreateNumber)
		authed.POST("/numbers/:id/checkout", h.CheckoutNumber)
		authed.POST("/numbers/:id/checkin", h.CheckinNumber)
		authed.POST("/numbers/:id/deactivate", h.DeactivateNumber)
		authed.POST("/numbers/:id/restore", h.RestoreNumber)
		authed.POST("/numbers/:id/transfer", h.TransferNumber)

		authed.POST("/calls", h.CreateCall)
		authed.POST("/results", h.RecordResult)
	}
}
