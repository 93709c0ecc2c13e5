// Package parent issues and redeems the single-use codes that link a parent account to a student.
package parent

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/user"
)

var (
	ErrInvalidCode        = errors.New("Invalid or expired verification code.")
	ErrCodeSpaceExhausted = errors.New("could not generate a unique verification code")
	ErrStudentAccount     = errors.New("Student accounts cannot redeem parent verification codes.")
)

const maxCodeAttempts = 10

type (
	Repository interface {
		CreateCode(ctx context.Context, vc VerificationCode, exec ...core.DBExecutor) (VerificationCode, error)
		CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)
		// GetCode returns ErrInvalidCode when no code matches.
		GetCode(ctx context.Context, code string, exec ...core.DBExecutor) (VerificationCode, error)
		// QueryCodes lists the codes issued for a student, newest first.
		QueryCodes(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]VerificationCode, error)
		// MarkUsed atomically flags an unused, unexpired code as used by userID.
		// It returns ErrInvalidCode when the code was already used, expired or never existed.
		MarkUsed(ctx context.Context, code, userID string, now time.Time, exec ...core.DBExecutor) error
		// DeleteExpired removes the unused codes that expired before the given time.
		DeleteExpired(ctx context.Context, before time.Time, exec ...core.DBExecutor) (int, error)
	}

	Students interface {
		GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (academic.Student, error)
		LinkParent(ctx context.Context, studentID, parentID string, exec ...core.DBExecutor) error
	}

	Notifier interface {
		NotifyUser(ctx context.Context, userID, title, body string, data map[string]string) (int, error)
	}

	Service struct {
		conf     *core.Config
		db       core.DB
		repo     Repository
		students Students
		users    user.ServiceInterface
		notifier Notifier
		email    core.EmailService
		validate *validator.Validate
		logger   core.Logger

		now    func() time.Time
		random io.Reader
	}
)

func NewService(
	conf *core.Config,
	db core.DB,
	repo Repository,
	students Students,
	users user.ServiceInterface,
	notifier Notifier,
	email core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		conf:     conf,
		db:       db,
		repo:     repo,
		students: students,
		users:    users,
		notifier: notifier,
		email:    email,
		validate: validate,
		logger:   logger,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// GenerateCode draws CodeLength characters of CodeAlphabet from r.
func GenerateCode(r io.Reader) (string, error) {
	n := len(CodeAlphabet)
	limit := 256 - 256%n // reject bytes past the last full cycle to keep the draw uniform
	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(code) < CodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", errors.Wrap(err, "reading random bytes")
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, CodeAlphabet[int(b)%n])
			if len(code) == CodeLength {
				break
			}
		}
	}
	return string(code), nil
}

func (svc *Service) codeTTL() time.Duration {
	if svc.conf != nil && svc.conf.Parent.CodeTTL > 0 {
		return svc.conf.Parent.CodeTTL
	}
	return DefaultCodeTTL
}

func (svc *Service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := GenerateCode(svc.random)
		if err != nil {
			return "", err
		}
		exists, err := svc.repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Issue creates a verification code for a student and emails it to the parent.
func (svc *Service) Issue(ctx context.Context, nc NewCode) (VerificationCode, error) {
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return VerificationCode{}, err
	}
	st, err := svc.students.GetStudent(ctx, nc.StudentID)
	if err != nil {
		return VerificationCode{}, err
	}

	code, err := svc.uniqueCode(ctx)
	if err != nil {
		return VerificationCode{}, errors.Wrap(err, "generating verification code")
	}
	now := svc.now().UTC()
	vc, err := svc.repo.CreateCode(ctx, VerificationCode{
		StudentID:   st.ID,
		Code:        code,
		ParentEmail: nc.ParentEmail,
		ParentName:  nc.ParentName,
		ExpiresAt:   now.Add(svc.codeTTL()),
		CreatedByID: nc.CreatedByID,
		CreatedAt:   now,
		Notes:       nc.Notes,
	})
	if err != nil {
		return VerificationCode{}, err
	}

	svc.email.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: vc.ParentName, Address: vc.ParentEmail}},
		Subject:      "Your parent portal verification code",
		TemplateName: "parent_verification_code",
		TemplateData: map[string]interface{}{
			"ParentName":  vc.ParentName,
			"StudentName": st.FullName(),
			"Code":        vc.Code,
			"ExpiresAt":   vc.ExpiresAt.Format("January 2, 2006"),
		},
	})
	return vc, nil
}

// Verify returns the code if it can still be redeemed.
func (svc *Service) Verify(ctx context.Context, code string) (VerificationCode, error) {
	return svc.verify(ctx, code)
}

func (svc *Service) verify(ctx context.Context, code string, exec ...core.DBExecutor) (VerificationCode, error) {
	code = NormalizeCode(code)
	if len(code) != CodeLength {
		return VerificationCode{}, ErrInvalidCode
	}
	vc, err := svc.repo.GetCode(ctx, code, exec...)
	if err != nil {
		return VerificationCode{}, err
	}
	if !vc.IsValid(svc.now().UTC()) {
		return VerificationCode{}, ErrInvalidCode
	}
	return vc, nil
}

func (svc *Service) CodesFor(ctx context.Context, studentID string) ([]VerificationCode, error) {
	return svc.repo.QueryCodes(ctx, studentID)
}

// Redeem links parent to the student of the code and grants the parent role.
// A code is redeemed at most once, concurrent attempts included.
// Student accounts cannot redeem codes.
func (svc *Service) Redeem(ctx context.Context, code string, parent user.User) (academic.Student, error) {
	if parent.IsStudent() {
		return academic.Student{}, ErrStudentAccount
	}
	var st academic.Student
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		st, err = svc.redeem(ctx, tx, code, parent)
		return err
	})
	if err != nil {
		return academic.Student{}, err
	}
	svc.notifyLinked(ctx, parent, st)
	return st, nil
}

func (svc *Service) redeem(ctx context.Context, tx core.DBExecutor, code string, parent user.User) (academic.Student, error) {
	vc, err := svc.verify(ctx, code, tx)
	if err != nil {
		return academic.Student{}, err
	}
	st, err := svc.students.GetStudent(ctx, vc.StudentID, tx)
	if err != nil {
		return academic.Student{}, err
	}
	if err = svc.repo.MarkUsed(ctx, vc.Code, parent.ID, svc.now().UTC(), tx); err != nil {
		return academic.Student{}, err
	}
	if err = svc.students.LinkParent(ctx, st.ID, parent.ID, tx); err != nil {
		return academic.Student{}, err
	}
	if !parent.IsParent() {
		if err = svc.users.AddRoles(ctx, parent.ID, []string{user.RoleParent}, tx); err != nil {
			return academic.Student{}, errors.Wrap(err, "granting parent role")
		}
	}
	return st, nil
}

// Register creates a parent account and redeems its verification code in one transaction.
func (svc *Service) Register(ctx context.Context, np NewParent) (user.User, academic.Student, error) {
	if err := svc.validate.Struct(np); err != nil {
		return user.User{}, academic.Student{}, err
	}
	nu := np.NewUser()
	if err := nu.Validate(ctx, svc.validate, svc.users); err != nil {
		return user.User{}, academic.Student{}, err
	}
	// fail before creating anything
	if _, err := svc.Verify(ctx, np.Code); err != nil {
		return user.User{}, academic.Student{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
	}

	var (
		usr user.User
		st  academic.Student
	)
	err := core.InTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if usr, err = svc.users.Create(ctx, nu, tx); err != nil {
			return err
		}
		st, err = svc.redeem(ctx, tx, np.Code, usr)
		return err
	})
	if err != nil {
		if errors.Cause(err) == ErrInvalidCode {
			err = core.NewValidationError(err, core.FieldError{Field: "code", Error: ErrInvalidCode.Error()})
		}
		return user.User{}, academic.Student{}, err
	}
	svc.notifyLinked(ctx, usr, st)
	return usr, st, nil
}

// PurgeExpired deletes the unused codes that are past their expiry date.
func (svc *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := svc.repo.DeleteExpired(ctx, svc.now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purging expired verification codes")
	}
	if n > 0 {
		svc.logger.Info(fmt.Sprintf("purged %d expired verification codes", n))
	}
	return n, nil
}

func (svc *Service) notifyLinked(ctx context.Context, parent user.User, st academic.Student) {
	if svc.notifier == nil {
		return
	}
	_, err := svc.notifier.NotifyUser(
		ctx,
		parent.ID,
		"Student linked",
		fmt.Sprintf("You now have access to %s's records.", st.FullName()),
		map[string]string{"type": "parent_link", "student_id": st.ID},
	)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("notifying parent: %v", err), err, parent)
	}
}
