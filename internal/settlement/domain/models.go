package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	SubscriptionActive  = "ACTIVE"
	SubscriptionExpired = "EXPIRED"
	EnrollmentActive    = "ACTIVE"
)

type Subscription struct {
	ID                 snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrganizationID     string         `json:"organization_id"`
	UserID             string         `json:"user_id"`
	PlanID             string         `json:"plan_id"`
	PaymentID          string         `json:"payment_id"`
	Status             string         `json:"status"`
	BillingPeriod      BillingPeriod  `json:"billing_period"`
	CurrentPeriodStart time.Time      `json:"current_period_start"`
	CurrentPeriodEnd   time.Time      `json:"current_period_end"`
	ExpiredAt          *time.Time     `json:"expired_at"`
	Metadata           datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

type Enrollment struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID      string       `json:"user_id"`
	CourseID    string       `json:"course_id"`
	PaymentID   string       `json:"payment_id"`
	Status      string       `json:"status"`
	ActivatedAt time.Time    `json:"activated_at"`
}

func (Enrollment) TableName() string { return "enrollments" }

type CouponRedemption struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	CouponCode string       `json:"coupon_code"`
	UserID     string       `json:"user_id"`
	PaymentID  string       `json:"payment_id"`
	RedeemedAt time.Time    `json:"redeemed_at"`
}

func (CouponRedemption) TableName() string { return "coupon_redemptions" }

type SeatGrant struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	OrganizationID string       `json:"organization_id"`
	PaymentID      string       `json:"payment_id"`
	Quantity       int          `json:"quantity"`
	GrantedAt      time.Time    `json:"granted_at"`
}

func (SeatGrant) TableName() string { return "seat_grants" }

type FoundersBonus struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	OrganizationID string       `json:"organization_id"`
	SubscriptionID snowflake.ID `json:"subscription_id"`
	BonusMonths    int          `json:"bonus_months"`
	GrantedAt      time.Time    `json:"granted_at"`
}

func (FoundersBonus) TableName() string { return "founders_bonuses" }

// Request carries everything a settled payment needs to apply its side effects.
type Request struct {
	ProductType     ProductType
	PaymentID       string `validate:"required"`
	UserID          string
	OrganizationID  string
	PlanID          string
	CourseID        string
	BillingPeriod   BillingPeriod
	SeatsQuantity   int
	CouponCode      string
	ProrationCredit *float64
	ProrationCharge *float64
}

// Step names recorded in a Report.
const (
	StepActivateEnrollment = "activate_enrollment"
	StepRedeemCoupon       = "redeem_coupon"
	StepExpireSubscription = "expire_subscription"
	StepCreateSubscription = "create_subscription"
	StepSetPlan            = "set_plan"
	StepFoundersBonus      = "founders_bonus"
	StepGrantSeats         = "grant_seats"
)

type StepResult struct {
	Step    string `json:"step"`
	Skipped bool   `json:"skipped,omitempty"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

func (s StepResult) OK() bool { return s.Err == nil }

// Report lists every step a dispatch attempted, in order.
type Report struct {
	ProductType ProductType  `json:"-"`
	Steps       []StepResult `json:"steps"`
}

func (r *Report) Record(step string, err error) {
	result := StepResult{Step: step, Err: err}
	if err != nil {
		result.Error = err.Error()
	}
	r.Steps = append(r.Steps, result)
}

func (r *Report) Skip(step string) {
	r.Steps = append(r.Steps, StepResult{Step: step, Skipped: true})
}

func (r Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

func (r Report) FailedSteps() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s.Step)
		}
	}
	return out
}
