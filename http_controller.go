package approval

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RegisterApprovalRoutes mounts the JSON surface for registration, sign-in,
// password management, and the admin directory.
func RegisterApprovalRoutes[T any](app router.Router[T], opts ...ApprovalControllerOption) {
	controller := NewApprovalController(opts...)

	app.Post(controller.Routes.Login, controller.LoginPost).SetName("sign-in.post")
	app.Post(controller.Routes.AdminLogin, controller.LoginPost).SetName("admin-sign-in.post")
	app.Post(controller.Routes.OwnerLogin, controller.LoginPost).SetName("owner-sign-in.post")
	app.Post(controller.Routes.Logout, controller.LogOut).SetName("sign-out.post")

	app.Post(controller.Routes.Register, controller.RegistrationCreate).SetName("register.post")

	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).SetName("pwd-reset.post")
	app.Post(controller.Routes.Password, controller.PasswordUpdatePost).SetName("pwd-update.post")

	app.Get(controller.Routes.Admin+"/pending", controller.PendingList).SetName("admin.pending.get")
	app.Get(controller.Routes.Admin+"/owners", controller.OwnerList).SetName("admin.owners.get")
	app.Post(controller.Routes.Admin+"/profiles/:uuid/approve", controller.ApprovePost).SetName("admin.approve.post")
	app.Post(controller.Routes.Admin+"/profiles/:uuid/reject", controller.RejectPost).SetName("admin.reject.post")
}

// ApprovalControllerRoutes are the mount points for the controller.
type ApprovalControllerRoutes struct {
	Login         string
	AdminLogin    string
	OwnerLogin    string
	Logout        string
	Register      string
	PasswordReset string
	Password      string
	Admin         string
}

// ApprovalController wires the command handlers and directory behind HTTP.
type ApprovalController struct {
	Logger       Logger
	Repo         RepositoryManager
	Gateway      IdentityGateway
	Directory    *Directory
	SigningKey   string
	Routes       *ApprovalControllerRoutes
	ErrorHandler router.ErrorHandler

	notifier Notifier
	activity ActivitySink

	approve  *ApproveProfileHandler
	reject   *RejectProfileHandler
	register *RegisterOwnerHandler
	password *UpdatePasswordHandler
	reset    *PasswordResetRequestHandler
}

type ApprovalControllerOption func(*ApprovalController) *ApprovalController

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) ApprovalControllerOption {
	return func(c *ApprovalController) *ApprovalController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerRepo sets the repository manager.
func WithControllerRepo(repo RepositoryManager) ApprovalControllerOption {
	return func(c *ApprovalController) *ApprovalController {
		c.Repo = repo
		return c
	}
}

// WithControllerGateway sets the identity gateway.
func WithControllerGateway(gateway IdentityGateway) ApprovalControllerOption {
	return func(c *ApprovalController) *ApprovalController {
		c.Gateway = gateway
		return c
	}
}

// WithControllerSigningKey sets the key used to decode gateway tokens.
func WithControllerSigningKey(key string) ApprovalControllerOption {
	return func(c *ApprovalController) *ApprovalController {
		c.SigningKey = key
		return c
	}
}

// WithControllerNotifier sets the notifier used by the approval workflow.
func WithControllerNotifier(notifier Notifier) ApprovalControllerOption {
	return func(c *ApprovalController) *ApprovalController {
		c.notifier = normalizeNotifier(notifier)
		return c
	}
}

// WithControllerActivitySink sets the audit sink shared by the handlers.
func WithControllerActivitySink(sink ActivitySink) ApprovalControllerOption {
	return func(c *ApprovalController) *ApprovalController {
		c.activity = normalizeActivitySink(sink)
		return c
	}
}

// WithControllerRoutes overrides the default mount points.
func WithControllerRoutes(routes *ApprovalControllerRoutes) ApprovalControllerOption {
	return func(c *ApprovalController) *ApprovalController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func NewApprovalController(opts ...ApprovalControllerOption) *ApprovalController {
	c := &ApprovalController{
		Logger:   defLogger{},
		notifier: noopNotifier{},
		activity: noopActivitySink{},
		Routes: &ApprovalControllerRoutes{
			Login:         string(RouteLogin),
			AdminLogin:    string(RouteAdminLogin),
			OwnerLogin:    string(RouteOwnerLogin),
			Logout:        "/logout",
			Register:      string(RouteRegister),
			PasswordReset: string(RoutePasswordReset),
			Password:      "/password",
			Admin:         string(RouteAdminHome),
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in approval controller...")
	}

	if c.Gateway == nil {
		panic("Missing IdentityGateway in approval controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.defaultErrHandler
	}

	c.Directory = NewDirectory(c.Repo).WithLogger(c.Logger)
	c.approve = NewApproveProfileHandler(c.Repo, c.Gateway).
		WithNotifier(c.notifier).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.reject = NewRejectProfileHandler(c.Repo).
		WithNotifier(c.notifier).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.register = NewRegisterOwnerHandler(c.Repo, c.Gateway).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.password = NewUpdatePasswordHandler(c.Repo, c.Gateway).
		WithActivitySink(c.activity).
		WithLogger(c.Logger)
	c.reset = NewPasswordResetRequestHandler(c.Gateway).
		WithLogger(c.Logger)

	return c
}

// LoginRequest is the sign-in payload shared by the login routes.
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *ApprovalController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse login payload"))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload"))
	}

	account, err := a.Gateway.SignIn(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "invalid credentials",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": account,
	})
}

func (a *ApprovalController) LogOut(ctx router.Context) error {
	if err := a.Gateway.SignOut(ctx.Context()); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "signed out",
	})
}

func (a *ApprovalController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegisterOwnerMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse registration payload"))
	}

	var resp *RegisterOwnerResponse
	payload.OnResponse = func(r *RegisterOwnerResponse) { resp = r }

	if err := a.register.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"profile":        resp.Profile,
		"establishments": resp.Establishments,
	})
}

func (a *ApprovalController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestMessage)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse reset payload"))
	}

	if err := a.reset.Execute(ctx.Context(), *payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusAccepted, map[string]string{
		"status": "reset email requested",
	})
}

// PasswordUpdatePayload is the first-login password change payload.
type PasswordUpdatePayload struct {
	NewPassword string `form:"new_password" json:"new_password"`
}

func (a *ApprovalController) PasswordUpdatePost(ctx router.Context) error {
	account, err := a.sessionAccount(ctx)
	if err != nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
	}

	payload := new(PasswordUpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse password payload"))
	}

	var profile *Profile
	msg := UpdatePasswordMessage{
		AccountID:   account.ID,
		NewPassword: payload.NewPassword,
		OnResponse:  func(p *Profile) { profile = p },
	}

	if err := a.password.Execute(ctx.Context(), msg); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"profile": profile,
	})
}

func (a *ApprovalController) PendingList(ctx router.Context) error {
	actor, err := a.adminActor(ctx)
	if err != nil {
		return a.adminBounce(ctx, err)
	}

	profiles, err := a.Directory.PendingProfiles(ctx.Context())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Logger.Debug("admin %s listed %d pending profiles", actor.ID, len(profiles))
	return ctx.JSON(router.StatusOK, map[string]any{
		"profiles": profiles,
	})
}

func (a *ApprovalController) OwnerList(ctx router.Context) error {
	if _, err := a.adminActor(ctx); err != nil {
		return a.adminBounce(ctx, err)
	}

	owners, err := a.Directory.ApprovedOwners(ctx.Context())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"owners": owners,
	})
}

func (a *ApprovalController) ApprovePost(ctx router.Context) error {
	actor, err := a.adminActor(ctx)
	if err != nil {
		return a.adminBounce(ctx, err)
	}

	profileID, err := uuid.Parse(ctx.Param("uuid"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "invalid profile id",
		})
	}

	var resp *ApproveProfileResponse
	msg := ApproveProfileMessage{
		ProfileID:  profileID,
		Actor:      actor,
		OnResponse: func(r *ApproveProfileResponse) { resp = r },
	}

	if err := a.approve.Execute(ctx.Context(), msg); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"profile":           resp.Profile,
		"notification_sent": resp.NotificationSent,
	})
}

func (a *ApprovalController) RejectPost(ctx router.Context) error {
	actor, err := a.adminActor(ctx)
	if err != nil {
		return a.adminBounce(ctx, err)
	}

	profileID, err := uuid.Parse(ctx.Param("uuid"))
	if err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "invalid profile id",
		})
	}

	var resp *RejectProfileResponse
	msg := RejectProfileMessage{
		ProfileID:  profileID,
		Actor:      actor,
		OnResponse: func(r *RejectProfileResponse) { resp = r },
	}

	if err := a.reject.Execute(ctx.Context(), msg); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"profile":           resp.Profile,
		"notification_sent": resp.NotificationSent,
	})
}

// sessionAccount decodes the bearer token issued by the gateway.
func (a *ApprovalController) sessionAccount(ctx router.Context) (*Account, error) {
	header := ctx.GetString(router.HeaderAuthorization, "")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if token == "" {
		return nil, ErrUnableToFindSession
	}
	return AccountFromToken(token, []byte(a.SigningKey))
}

// adminActor resolves the caller and verifies the admin role, mirroring the
// admin surface guard: anyone else is bounced to the admin login.
func (a *ApprovalController) adminActor(ctx router.Context) (ActorRef, error) {
	account, err := a.sessionAccount(ctx)
	if err != nil {
		return ActorRef{}, err
	}

	actor := ActorRef{ID: account.ID.String(), Type: "admin"}
	if err := requireAdmin(ctx.Context(), a.Repo, actor); err != nil {
		return ActorRef{}, err
	}

	return actor, nil
}

func (a *ApprovalController) adminBounce(ctx router.Context, err error) error {
	if IsAdminRequired(err) {
		a.Logger.Warn("admin surface denied: %v", err)
		return ctx.Redirect(string(RouteAdminLogin), router.StatusSeeOther)
	}
	return ctx.JSON(router.StatusUnauthorized, map[string]string{
		"error": "authentication required",
	})
}

func (a *ApprovalController) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status := router.StatusInternalServerError
		switch richErr.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			status = router.StatusBadRequest
		case goerrors.CategoryAuth:
			status = router.StatusUnauthorized
		case goerrors.CategoryNotFound:
			status = router.StatusNotFound
		case goerrors.CategoryConflict:
			status = router.StatusConflict
		}
		if status == router.StatusInternalServerError {
			a.Logger.Error("http handler error: %v", err)
		}
		return ctx.JSON(status, map[string]any{
			"error": richErr.Message,
			"code":  richErr.TextCode,
		})
	}

	a.Logger.Error("http handler error: %v", err)
	return ctx.JSON(router.StatusInternalServerError, map[string]string{
		"error": "internal error",
	})
}
