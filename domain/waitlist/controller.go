package waitlist

import (
	"github.com/akeren/go-waitlist/config/router"
)

const signupLimiterName = "waitlist_signup"

func NewWaitlistController(factory WaitlistServiceFactory) *router.RESTController {
	return router.NewVersionedRESTController(
		"WaitlistController",
		"v1",
		"/waitlist",
		func(rs *router.RouterService, c *router.RESTController) {
			service := factory.CreateService(NewMetrics(rs.MetricsRegisterer()))

			settings := factory.Settings()
			signupLimiter := rs.RateLimiterFactory().CreateRateLimiter(
				signupLimiterName,
				settings.SignupRateLimit,
				settings.SignupRateWindow,
			)

			rs.AddPostHandler(c, signupLimiter, "", admitHandler(service))
			rs.AddGetHandler(c, nil, "/status", statusHandler(service))
			rs.AddGetHandler(c, nil, "/referrals/:code", referralCodeHandler(service))
		},
	)
}

func admitHandler(service AdmissionService) router.HandlerFunction {
	return func(ctx *router.RequestContext) *router.ServiceResult {
		var req AdmitRequest
		if result := router.BindJSON(ctx, &req); result != nil {
			return result
		}

		if req.UserAgent == "" {
			req.UserAgent = ctx.Request.UserAgent()
		}

		response, err := service.Admit(ctx.Request.Context(), &req)
		if err != nil {
			if code, ok := ExistingReferralCode(err); ok {
				return router.ErrorResultFromError(err, AlreadyRegisteredResponse{ReferralCode: code})
			}
			return router.ErrorResultFromError(err, nil)
		}

		return router.CreatedResult(response, "Waitlist entry")
	}
}

func statusHandler(service AdmissionService) router.HandlerFunction {
	return func(ctx *router.RequestContext) *router.ServiceResult {
		var query StatusQuery
		if result := router.BindQuery(ctx, &query); result != nil {
			return result
		}

		response, err := service.Status(ctx.Request.Context(), query.Email)
		if err != nil {
			return router.ErrorResultFromError(err, nil)
		}

		return router.OKResult(response, "Waitlist status retrieved successfully")
	}
}

func referralCodeHandler(service AdmissionService) router.HandlerFunction {
	return func(ctx *router.RequestContext) *router.ServiceResult {
		response, err := service.CheckReferralCode(ctx.Request.Context(), ctx.Param("code"))
		if err != nil {
			return router.ErrorResultFromError(err, nil)
		}

		return router.OKResult(response, "Referral code checked")
	}
}
