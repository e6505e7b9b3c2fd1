package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// The supplier needs time to generate the pending agreement after a switch
// request before terms can be accepted. This is a deliberate blocking pause
// in an otherwise sequential protocol, not a poll.
const enrolmentPropagationWait = 60 * time.Second

// verifyRetryWait is the back-off before the single verification retry.
const verifyRetryWait = 20 * time.Second

// defaultTermsVersion applies when the supplier returns no version for the
// target product.
const defaultTermsVersion = "1.0"

var errNoEnrolmentID = errors.New("no enrolment id returned")

// SwitchAPI is the remote surface the switch protocol drives. Implemented
// by OctopusClient.
type SwitchAPI interface {
	SubmitSwitch(productCode, mpan string, changeDate time.Time) (string, error)
	TermsVersion(productCode string) (string, error)
	AcceptTerms(enrolmentID string, major, minor int) (string, error)
	AgreementStartDates() ([]time.Time, error)
}

// SwitchOutcome records the transient state of one switch attempt. Nothing
// here is persisted; a crash mid-protocol leaves no local record.
type SwitchOutcome struct {
	EnrolmentID     string
	AcceptedVersion string
	Verified        bool
}

// SwitchOrchestrator drives the linear switch protocol:
// submit -> resolve terms -> accept -> verify, with exactly one verification
// retry. Any stage failure aborts immediately with the stage name attached;
// completed stages are never rolled back.
type SwitchOrchestrator struct {
	api           SwitchAPI
	notifier      Notifier
	accountNumber string
	logger        *slog.Logger

	// Injection points for tests.
	sleep func(time.Duration)
	now   func() time.Time
}

func NewSwitchOrchestrator(api SwitchAPI, notifier Notifier, accountNumber string, logger *slog.Logger) *SwitchOrchestrator {
	return &SwitchOrchestrator{
		api:           api,
		notifier:      notifier,
		accountNumber: accountNumber,
		logger:        logger,
		sleep:         time.Sleep,
		now:           time.Now,
	}
}

// Execute runs the protocol once for the target product. An unverified
// outcome is not an error: the switch very likely landed server-side, so
// the user is pointed at the supplier's UI instead.
func (o *SwitchOrchestrator) Execute(productCode, mpan string) (*SwitchOutcome, error) {
	outcome := &SwitchOutcome{}
	today := o.now().UTC()

	o.logger.Info("submitting switch request", "product", productCode, "mpan", mpan)
	enrolmentID, err := o.api.SubmitSwitch(productCode, mpan, today)
	if err != nil {
		return outcome, &StageError{Stage: "submit", Err: err}
	}
	if enrolmentID == "" {
		return outcome, &StageError{Stage: "submit", Err: errNoEnrolmentID}
	}
	outcome.EnrolmentID = enrolmentID
	o.notifier.Notify("Tariff switch requested successfully.")

	// Blocking pause for the pending agreement to materialise.
	o.sleep(enrolmentPropagationWait)

	major, minor, err := o.resolveTermsVersion(productCode)
	if err != nil {
		return outcome, &StageError{Stage: "terms", Err: err}
	}

	accepted, err := o.api.AcceptTerms(enrolmentID, major, minor)
	if err != nil {
		return outcome, &StageError{Stage: "accept", Err: err}
	}
	if accepted == "" {
		accepted = "unknown version"
	}
	outcome.AcceptedVersion = accepted
	o.notifier.Notify(fmt.Sprintf("Accepted agreement (v.%s). Switch successful.", accepted))

	verified, err := o.verifyAgreement(today)
	if err != nil {
		return outcome, &StageError{Stage: "verify", Err: err}
	}
	if !verified {
		o.notifier.Notify("Verification failed, waiting and trying again...")
		o.sleep(verifyRetryWait)
		verified, err = o.verifyAgreement(today)
		if err != nil {
			return outcome, &StageError{Stage: "verify", Err: err}
		}
	}
	outcome.Verified = verified

	if verified {
		o.notifier.Notify("Verified new agreement successfully. Process finished.")
	} else {
		// Uncertainty, not failure: the user needs to check manually.
		o.notifier.Notify(fmt.Sprintf(
			"Unable to verify new agreement after retry. Please check your account and emails.\n"+
				"https://octopus.energy/dashboard/new/accounts/%s/messages", o.accountNumber))
	}

	return outcome, nil
}

func (o *SwitchOrchestrator) resolveTermsVersion(productCode string) (int, int, error) {
	version, err := o.api.TermsVersion(productCode)
	if err != nil {
		return 0, 0, err
	}
	if version == "" {
		version = defaultTermsVersion
	}
	return parseTermsVersion(version)
}

// parseTermsVersion splits a "major.minor" version string into its parts.
func parseTermsVersion(version string) (int, int, error) {
	parts := strings.SplitN(version, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed terms version %q", version)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed terms version %q: %w", version, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed terms version %q: %w", version, err)
	}
	return major, minor, nil
}

// verifyAgreement re-reads the account and checks whether any electricity
// agreement started today.
func (o *SwitchOrchestrator) verifyAgreement(today time.Time) (bool, error) {
	starts, err := o.api.AgreementStartDates()
	if err != nil {
		return false, err
	}
	for _, start := range starts {
		if sameDate(start.UTC(), today) {
			return true, nil
		}
	}
	return false, nil
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
