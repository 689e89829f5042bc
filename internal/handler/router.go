package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campushub/institute-api/internal/middleware"
	"github.com/campushub/institute-api/internal/models"
	"github.com/campushub/institute-api/internal/service"
)

// Router groups the API handlers and their route guards.
type Router struct {
	Auth       *AuthHandler
	Courses    *CourseHandler
	Subjects   *SubjectHandler
	Classes    *ClassHandler
	Attendance *AttendanceHandler
	Reports    *ReportHandler

	Tokens  *service.TokenService
	Limiter *middleware.RateLimiter
}

// Register mounts all API routes under the given prefix. The throttle runs
// after OptionalJWT so authenticated callers are keyed and tiered by role.
// Cookie-based auth routes and report downloads stay outside the throttle.
func (rt *Router) Register(r *gin.Engine, prefix string) {
	api := r.Group(prefix)
	api.Use(middleware.OptionalJWT(rt.Tokens))

	throttle := func(c *gin.Context) { c.Next() }
	if rt.Limiter != nil {
		throttle = rt.Limiter.Limit()
	}
	jwt := middleware.JWT(rt.Tokens)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	auth := api.Group("/auth")
	{
		auth.POST("/register", throttle, rt.Auth.Register)
		auth.POST("/login", throttle, rt.Auth.Login)
		auth.POST("/refresh", rt.Auth.Refresh)
		auth.POST("/logout", rt.Auth.Logout)
		auth.GET("/me", jwt, rt.Auth.Me)
	}

	courses := api.Group("/courses", throttle)
	{
		courses.GET("", rt.Courses.List)
		courses.GET("/:id", rt.Courses.Get)
		courses.POST("", jwt, adminOnly, rt.Courses.Create)
		courses.PUT("/:id", jwt, adminOnly, rt.Courses.Update)
		courses.DELETE("/:id", jwt, adminOnly, rt.Courses.Delete)
	}

	subjects := api.Group("/subjects", throttle)
	{
		subjects.GET("", rt.Subjects.List)
		subjects.GET("/:id", rt.Subjects.Get)
		subjects.POST("", jwt, adminOnly, rt.Subjects.Create)
		subjects.PUT("/:id", jwt, adminOnly, rt.Subjects.Update)
		subjects.DELETE("/:id", jwt, adminOnly, rt.Subjects.Delete)
	}

	classes := api.Group("/classes", throttle)
	{
		classes.GET("", rt.Classes.List)
		classes.GET("/:id", rt.Classes.Get)
		classes.POST("", jwt, adminOnly, rt.Classes.Create)
		classes.PUT("/:id", jwt, adminOnly, rt.Classes.Update)
		classes.DELETE("/:id", jwt, adminOnly, rt.Classes.Delete)
		classes.PUT("/:id/enroll", jwt, adminOnly, rt.Classes.Enroll)
		classes.PUT("/:id/unenroll", jwt, adminOnly, rt.Classes.Unenroll)
	}

	attendance := api.Group("/attendance", jwt)
	{
		attendance.GET("", staff, rt.Attendance.List)
		attendance.GET("/class/:id", staff, rt.Attendance.ListByClass)
		attendance.GET("/student/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), "SELF"), rt.Attendance.ListByStudent)
		attendance.POST("", throttle, staff, rt.Attendance.Mark)
		attendance.POST("/:id", throttle, staff, rt.Attendance.Mark)
		attendance.PUT("/:id", throttle, staff, rt.Attendance.Update)
		attendance.DELETE("/:id", throttle, staff, rt.Attendance.Delete)
	}

	if rt.Reports != nil {
		reports := api.Group("/reports")
		{
			reports.POST("/attendance", jwt, staff, rt.Reports.Create)
			reports.GET("/:id", jwt, staff, rt.Reports.Status)
			// Download links carry their own HMAC signature instead of a
			// bearer token so they work from a browser.
			reports.GET("/:id/download", rt.Reports.Download)
		}
	}
}
