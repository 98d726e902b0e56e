package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelinehq/telehealth-queue/internal/notify"
	redisclient "github.com/carelinehq/telehealth-queue/internal/redis"
)

// -- Mock repository --

type mockRepo struct {
	users   map[uuid.UUID]*User
	doctors map[uuid.UUID]*Doctor
	appts   map[uuid.UUID]*Appointment
	metrics []MetricEvent

	failMetric  bool
	failCompact bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:   make(map[uuid.UUID]*User),
		doctors: make(map[uuid.UUID]*Doctor),
		appts:   make(map[uuid.UUID]*Appointment),
	}
}

func (m *mockRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockRepo) GetDoctorByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (m *mockRepo) ListDoctors(_ context.Context) ([]DoctorProfile, error) {
	var result []DoctorProfile
	for _, d := range m.doctors {
		p := DoctorProfile{Doctor: *d}
		if u, ok := m.users[d.UserID]; ok {
			p.Name = u.Name
			p.Email = u.Email
		}
		result = append(result, p)
	}
	return result, nil
}

func (m *mockRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	cp := *a
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.appts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockRepo) HasActiveAppointmentOnDate(_ context.Context, patientID uuid.UUID, date string) (bool, error) {
	for _, a := range m.appts {
		if a.PatientID == patientID && a.Date == date && !a.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) CountActive(_ context.Context, p Partition) (int, error) {
	count := 0
	for _, a := range m.appts {
		if a.Partition() == p && a.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (m *mockRepo) SetStatus(_ context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *mockRepo) SetStatusAndQueueNumber(_ context.Context, id uuid.UUID, status Status, queueNumber int) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = status
	a.QueueNumber = queueNumber
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *mockRepo) CompactQueue(_ context.Context, p Partition, vacated int) error {
	if m.failCompact {
		return errors.New("simulated compact failure")
	}
	for _, a := range m.appts {
		if a.Partition() == p && a.Status.Active() && a.QueueNumber > vacated {
			a.QueueNumber--
		}
	}
	return nil
}

func (m *mockRepo) InsertMetric(_ context.Context, ev MetricEvent) error {
	if m.failMetric {
		return errors.New("simulated metric failure")
	}
	m.metrics = append(m.metrics, ev)
	return nil
}

func (m *mockRepo) ListDoctorQueue(_ context.Context, doctorID uuid.UUID) ([]QueueEntry, error) {
	var result []QueueEntry
	for _, a := range m.appts {
		if a.DoctorID != doctorID || a.Status.Terminal() {
			continue
		}
		e := QueueEntry{Appointment: *a}
		if u, ok := m.users[a.PatientID]; ok {
			e.PatientName = u.Name
		}
		result = append(result, e)
	}
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if queueOrder(result[j].Appointment) < queueOrder(result[i].Appointment) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	return result, nil
}

func queueOrder(a Appointment) int {
	if a.QueueNumber > 0 {
		return a.QueueNumber
	}
	return 1 << 20
}

func (m *mockRepo) ListPatientHistory(_ context.Context, patientID uuid.UUID) ([]HistoryEntry, error) {
	var result []HistoryEntry
	for _, a := range m.appts {
		if a.PatientID != patientID {
			continue
		}
		result = append(result, HistoryEntry{Appointment: *a})
	}
	return result, nil
}

func (m *mockRepo) ListStalePending(_ context.Context, before string) ([]Appointment, error) {
	var result []Appointment
	for _, a := range m.appts {
		if a.Status == StatusPending && a.Date < before {
			result = append(result, *a)
		}
	}
	return result, nil
}

// InTx snapshots state and restores it when fn fails, mimicking an
// all-or-nothing store transaction.
func (m *mockRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	apptSnapshot := make(map[uuid.UUID]*Appointment, len(m.appts))
	for id, a := range m.appts {
		cp := *a
		apptSnapshot[id] = &cp
	}
	metricSnapshot := append([]MetricEvent(nil), m.metrics...)

	if err := fn(ctx, m); err != nil {
		m.appts = apptSnapshot
		m.metrics = metricSnapshot
		return err
	}
	return nil
}

// -- Mock locker and notifier --

type mockLocker struct {
	busy bool
	keys []string
}

func (l *mockLocker) WithPartitionLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if l.busy {
		return redisclient.ErrLockNotAcquired
	}
	l.keys = append(l.keys, key)
	return fn(ctx)
}

type mockNotifier struct {
	events []notify.QueueEvent
	emails []string
	fail   bool
}

func (n *mockNotifier) PublishQueueUpdate(_ context.Context, ev notify.QueueEvent) error {
	if n.fail {
		return errors.New("simulated publish failure")
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *mockNotifier) EmailPatient(_ context.Context, to, subject, body string) error {
	if n.fail {
		return errors.New("simulated email failure")
	}
	n.emails = append(n.emails, to)
	return nil
}

// -- Fixture --

type fixture struct {
	repo     *mockRepo
	locker   *mockLocker
	notifier *mockNotifier
	svc      *Service

	doctor      *Doctor
	doctorActor Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newMockRepo()
	locker := &mockLocker{}
	notifier := &mockNotifier{}
	svc := NewService(repo, locker, notifier, zerolog.Nop())

	doctorUser := &User{ID: uuid.New(), Name: "Dr. Osei", Email: "osei@clinic.test", Role: RoleDoctor}
	doctor := &Doctor{ID: uuid.New(), UserID: doctorUser.ID, Specialization: "Cardiology", ConsultationTime: 15}
	repo.users[doctorUser.ID] = doctorUser
	repo.doctors[doctor.ID] = doctor

	return &fixture{
		repo:        repo,
		locker:      locker,
		notifier:    notifier,
		svc:         svc,
		doctor:      doctor,
		doctorActor: Actor{UserID: doctorUser.ID, Role: RoleDoctor},
	}
}

func (f *fixture) addPatient(t *testing.T, name string) Actor {
	t.Helper()
	u := &User{ID: uuid.New(), Name: name, Email: name + "@patients.test", Role: RolePatient}
	f.repo.users[u.ID] = u
	return Actor{UserID: u.ID, Role: RolePatient}
}

func (f *fixture) addPending(t *testing.T, patient Actor, date, slot string) *Appointment {
	t.Helper()
	a, err := f.repo.CreateAppointment(context.Background(), &Appointment{
		PatientID: patient.UserID,
		DoctorID:  f.doctor.ID,
		Date:      date,
		TimeSlot:  slot,
		Reason:    DefaultReason,
		Status:    StatusPending,
	})
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	return a
}

func (f *fixture) addBooked(t *testing.T, patient Actor, date, slot string, queueNumber int) *Appointment {
	t.Helper()
	a := f.addPending(t, patient, date, slot)
	a, err := f.repo.SetStatusAndQueueNumber(context.Background(), a.ID, StatusBooked, queueNumber)
	if err != nil {
		t.Fatalf("set booked: %v", err)
	}
	return a
}

// activeQueueNumbers returns the sorted queue numbers of active
// appointments in the partition.
func (f *fixture) activeQueueNumbers(p Partition) []int {
	var nums []int
	for _, a := range f.repo.appts {
		if a.Partition() == p && a.Status.Active() {
			nums = append(nums, a.QueueNumber)
		}
	}
	for i := 0; i < len(nums); i++ {
		for j := i + 1; j < len(nums); j++ {
			if nums[j] < nums[i] {
				nums[i], nums[j] = nums[j], nums[i]
			}
		}
	}
	return nums
}

func assertDense(t *testing.T, nums []int) {
	t.Helper()
	for i, n := range nums {
		if n != i+1 {
			t.Fatalf("queue numbers not dense: got %v", nums)
		}
	}
}

// -- Tests --

func TestConfirmAssignsSequentialQueueNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.addPatient(t, "ana")
	p2 := f.addPatient(t, "ben")
	a := f.addPending(t, p1, "2026-09-01", "09:00-12:00")
	b := f.addPending(t, p2, "2026-09-01", "09:00-12:00")

	got, err := f.svc.Confirm(ctx, f.doctorActor, a.ID)
	if err != nil {
		t.Fatalf("confirm A: %v", err)
	}
	if got.Status != StatusBooked || got.QueueNumber != 1 {
		t.Fatalf("A: got status=%s queue=%d, want BOOKED/1", got.Status, got.QueueNumber)
	}

	got, err = f.svc.Confirm(ctx, f.doctorActor, b.ID)
	if err != nil {
		t.Fatalf("confirm B: %v", err)
	}
	if got.QueueNumber != 2 {
		t.Fatalf("B: got queue=%d, want 2", got.QueueNumber)
	}

	assertDense(t, f.activeQueueNumbers(a.Partition()))
}

func TestCompleteCompactsQueueAndRecordsMetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.addPatient(t, "ana")
	p2 := f.addPatient(t, "ben")
	a := f.addBooked(t, p1, "2026-09-01", "09:00-12:00", 1)
	b := f.addBooked(t, p2, "2026-09-01", "09:00-12:00", 2)

	if _, err := f.svc.Transition(ctx, f.doctorActor, a.ID, StatusInProgress); err != nil {
		t.Fatalf("start A: %v", err)
	}
	if _, err := f.svc.Transition(ctx, f.doctorActor, a.ID, StatusCompleted); err != nil {
		t.Fatalf("complete A: %v", err)
	}

	bNow, _ := f.repo.GetAppointmentByID(ctx, b.ID)
	if bNow.QueueNumber != 1 {
		t.Fatalf("B queue after completing A: got %d, want 1", bNow.QueueNumber)
	}

	if len(f.repo.metrics) != 1 {
		t.Fatalf("metrics recorded: got %d, want 1", len(f.repo.metrics))
	}
	m := f.repo.metrics[0]
	if m.MetricName != MetricConsultationCompleted || m.Value != 1 {
		t.Fatalf("unexpected metric: %+v", m)
	}
	if m.DoctorID != f.doctor.ID || m.PatientID != p1.UserID {
		t.Fatalf("metric not tagged with doctor/patient: %+v", m)
	}
}

func TestCancelMiddleOfQueueCompacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.addPatient(t, "ana")
	p2 := f.addPatient(t, "ben")
	p3 := f.addPatient(t, "cas")
	a := f.addBooked(t, p1, "2026-09-01", "09:00-12:00", 1)
	b := f.addBooked(t, p2, "2026-09-01", "09:00-12:00", 2)
	c := f.addBooked(t, p3, "2026-09-01", "09:00-12:00", 3)

	if _, err := f.svc.Transition(ctx, p2, b.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel B: %v", err)
	}

	aNow, _ := f.repo.GetAppointmentByID(ctx, a.ID)
	cNow, _ := f.repo.GetAppointmentByID(ctx, c.ID)
	bNow, _ := f.repo.GetAppointmentByID(ctx, b.ID)

	if aNow.QueueNumber != 1 {
		t.Fatalf("A queue: got %d, want 1 (unaffected)", aNow.QueueNumber)
	}
	if cNow.QueueNumber != 2 {
		t.Fatalf("C queue: got %d, want 2", cNow.QueueNumber)
	}
	// Terminal records keep the number they held when they left.
	if bNow.QueueNumber != 2 || bNow.Status != StatusCancelled {
		t.Fatalf("B after cancel: got status=%s queue=%d", bNow.Status, bNow.QueueNumber)
	}

	assertDense(t, f.activeQueueNumbers(a.Partition()))
}

func TestTerminalStatusIsLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")

	for _, terminal := range []Status{StatusCompleted, StatusRejected, StatusCancelled} {
		a := f.addPending(t, patient, "2026-09-01", "09:00-12:00")
		if _, err := f.repo.SetStatus(ctx, a.ID, terminal); err != nil {
			t.Fatalf("setup: %v", err)
		}

		for _, next := range []Status{StatusBooked, StatusInProgress, StatusCompleted, StatusCancelled} {
			_, err := f.svc.Transition(ctx, f.doctorActor, a.ID, next)
			if !errors.Is(err, ErrTerminalStatus) {
				t.Fatalf("%s -> %s: got %v, want ErrTerminalStatus", terminal, next, err)
			}
		}

		now, _ := f.repo.GetAppointmentByID(ctx, a.ID)
		if now.Status != terminal {
			t.Fatalf("record changed: got %s, want %s", now.Status, terminal)
		}
	}
}

func TestConfirmByPatientForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")
	a := f.addPending(t, patient, "2026-09-01", "09:00-12:00")

	_, err := f.svc.Confirm(ctx, patient, a.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}

	now, _ := f.repo.GetAppointmentByID(ctx, a.ID)
	if now.Status != StatusPending || now.QueueNumber != 0 {
		t.Fatalf("record changed: %+v", now)
	}
}

func TestDenyOtherPatientsAppointmentForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.addPatient(t, "ana")
	other := f.addPatient(t, "ben")
	a := f.addPending(t, owner, "2026-09-01", "09:00-12:00")

	_, err := f.svc.Transition(ctx, other, a.ID, StatusRejected)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestDoctorCannotTouchOtherDoctorsAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")
	a := f.addPending(t, patient, "2026-09-01", "09:00-12:00")

	otherUser := &User{ID: uuid.New(), Name: "Dr. Vega", Email: "vega@clinic.test", Role: RoleDoctor}
	f.repo.users[otherUser.ID] = otherUser
	f.repo.doctors[uuid.New()] = &Doctor{ID: uuid.New(), UserID: otherUser.ID, ConsultationTime: 20}

	_, err := f.svc.Confirm(ctx, Actor{UserID: otherUser.ID, Role: RoleDoctor}, a.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestTransitionRollsBackOnMetricFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.addPatient(t, "ana")
	p2 := f.addPatient(t, "ben")
	a := f.addBooked(t, p1, "2026-09-01", "09:00-12:00", 1)
	b := f.addBooked(t, p2, "2026-09-01", "09:00-12:00", 2)

	if _, err := f.svc.Transition(ctx, f.doctorActor, a.ID, StatusInProgress); err != nil {
		t.Fatalf("start A: %v", err)
	}

	f.repo.failMetric = true
	_, err := f.svc.Transition(ctx, f.doctorActor, a.ID, StatusCompleted)
	if err == nil {
		t.Fatal("expected transition to fail")
	}

	aNow, _ := f.repo.GetAppointmentByID(ctx, a.ID)
	bNow, _ := f.repo.GetAppointmentByID(ctx, b.ID)
	if aNow.Status != StatusInProgress {
		t.Fatalf("A status after rollback: got %s, want IN_PROGRESS", aNow.Status)
	}
	if bNow.QueueNumber != 2 {
		t.Fatalf("B queue after rollback: got %d, want 2", bNow.QueueNumber)
	}
	if len(f.repo.metrics) != 0 {
		t.Fatalf("metrics after rollback: got %d, want 0", len(f.repo.metrics))
	}
}

func TestTransitionRollsBackOnCompactFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.addPatient(t, "ana")
	a := f.addBooked(t, p1, "2026-09-01", "09:00-12:00", 1)

	f.repo.failCompact = true
	_, err := f.svc.Transition(ctx, p1, a.ID, StatusCancelled)
	if err == nil {
		t.Fatal("expected transition to fail")
	}

	aNow, _ := f.repo.GetAppointmentByID(ctx, a.ID)
	if aNow.Status != StatusBooked {
		t.Fatalf("status after rollback: got %s, want BOOKED", aNow.Status)
	}
}

func TestBookRejectsSecondActiveAppointmentOnDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")

	if _, err := f.svc.Book(ctx, patient, BookRequest{
		DoctorID: f.doctor.ID,
		Date:     "2026-09-01",
		TimeSlot: "09:00-12:00",
	}); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err := f.svc.Book(ctx, patient, BookRequest{
		DoctorID: f.doctor.ID,
		Date:     "2026-09-01",
		TimeSlot: "14:00-17:00",
	})
	if !errors.Is(err, ErrActiveAppointmentExists) {
		t.Fatalf("got %v, want ErrActiveAppointmentExists", err)
	}

	if len(f.repo.appts) != 1 {
		t.Fatalf("appointments created: got %d, want 1", len(f.repo.appts))
	}
}

func TestBookDefaultsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")
	appt, err := f.svc.Book(ctx, patient, BookRequest{
		DoctorID: f.doctor.ID,
		Date:     "2026-09-01",
		TimeSlot: "09:00-12:00",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Reason != DefaultReason {
		t.Fatalf("reason: got %q, want %q", appt.Reason, DefaultReason)
	}
	if appt.Status != StatusPending || appt.QueueNumber != 0 {
		t.Fatalf("new booking: got status=%s queue=%d, want PENDING/0", appt.Status, appt.QueueNumber)
	}
}

func TestConfirmAlreadyBookedInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")
	a := f.addBooked(t, patient, "2026-09-01", "09:00-12:00", 1)

	_, err := f.svc.Confirm(ctx, f.doctorActor, a.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionMissingAppointment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Transition(context.Background(), f.doctorActor, uuid.New(), StatusCancelled)
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("got %v, want ErrAppointmentNotFound", err)
	}
}

func TestTransitionSurfacesLockContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")
	a := f.addPending(t, patient, "2026-09-01", "09:00-12:00")

	f.locker.busy = true
	_, err := f.svc.Confirm(ctx, f.doctorActor, a.ID)
	if !errors.Is(err, redisclient.ErrLockNotAcquired) {
		t.Fatalf("got %v, want ErrLockNotAcquired", err)
	}
}

func TestTransitionLocksThePartition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")
	a := f.addPending(t, patient, "2026-09-01", "09:00-12:00")

	if _, err := f.svc.Confirm(ctx, f.doctorActor, a.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if len(f.locker.keys) != 1 || f.locker.keys[0] != a.Partition().Key() {
		t.Fatalf("lock keys: got %v, want [%s]", f.locker.keys, a.Partition().Key())
	}
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")
	a := f.addPending(t, patient, "2026-09-01", "09:00-12:00")

	f.notifier.fail = true
	got, err := f.svc.Confirm(ctx, f.doctorActor, a.ID)
	if err != nil {
		t.Fatalf("confirm with failing notifier: %v", err)
	}
	if got.Status != StatusBooked {
		t.Fatalf("status: got %s, want BOOKED", got.Status)
	}
}

func TestConfirmNotifiesPatientAndQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")
	a := f.addPending(t, patient, "2026-09-01", "09:00-12:00")

	if _, err := f.svc.Confirm(ctx, f.doctorActor, a.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if len(f.notifier.events) != 1 || f.notifier.events[0].Type != notify.EventAppointmentBooked {
		t.Fatalf("events: %+v", f.notifier.events)
	}
	if len(f.notifier.emails) != 1 || f.notifier.emails[0] != "ana@patients.test" {
		t.Fatalf("emails: %v", f.notifier.emails)
	}
}

func TestDenyEmailsPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	patient := f.addPatient(t, "ana")
	a := f.addBooked(t, patient, "2026-09-01", "09:00-12:00", 1)

	if _, err := f.svc.Transition(ctx, patient, a.ID, StatusRejected); err != nil {
		t.Fatalf("deny: %v", err)
	}

	if len(f.notifier.emails) != 1 {
		t.Fatalf("emails: got %d, want 1", len(f.notifier.emails))
	}
}

func TestDoctorQueueAnnotatesWaitingTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.addPatient(t, "ana")
	p2 := f.addPatient(t, "ben")
	p3 := f.addPatient(t, "cas")
	f.addBooked(t, p1, "2026-09-01", "09:00-12:00", 1)
	f.addBooked(t, p2, "2026-09-01", "09:00-12:00", 2)
	f.addBooked(t, p3, "2026-09-01", "09:00-12:00", 3)

	entries, err := f.svc.DoctorQueue(ctx, f.doctorActor)
	if err != nil {
		t.Fatalf("doctor queue: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(entries))
	}

	// consultationTime is 15 in the fixture.
	wantWaits := []int{0, 15, 30}
	for i, e := range entries {
		if e.QueueNumber != i+1 {
			t.Fatalf("entry %d: queue %d, want %d", i, e.QueueNumber, i+1)
		}
		if e.WaitingTime != wantWaits[i] {
			t.Fatalf("entry %d: waiting %d, want %d", i, e.WaitingTime, wantWaits[i])
		}
	}
}

func TestDoctorQueueForbiddenForPatients(t *testing.T) {
	f := newFixture(t)

	patient := f.addPatient(t, "ana")
	_, err := f.svc.DoctorQueue(context.Background(), patient)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestCancelStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.addPatient(t, "ana")
	p2 := f.addPatient(t, "ben")
	stale := f.addPending(t, p1, "2026-08-01", "09:00-12:00")
	fresh := f.addPending(t, p2, "2026-12-01", "09:00-12:00")

	cancelled, err := f.svc.CancelStalePending(ctx, "2026-09-01")
	if err != nil {
		t.Fatalf("cancel stale: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("cancelled: got %d, want 1", cancelled)
	}

	staleNow, _ := f.repo.GetAppointmentByID(ctx, stale.ID)
	freshNow, _ := f.repo.GetAppointmentByID(ctx, fresh.ID)
	if staleNow.Status != StatusCancelled {
		t.Fatalf("stale status: got %s, want CANCELLED", staleNow.Status)
	}
	if freshNow.Status != StatusPending {
		t.Fatalf("fresh status: got %s, want PENDING", freshNow.Status)
	}
}

func TestQueueStaysDenseUnderMixedTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var appts []*Appointment
	var patients []Actor
	for _, name := range []string{"ana", "ben", "cas", "dee", "eli"} {
		p := f.addPatient(t, name)
		patients = append(patients, p)
		appts = append(appts, f.addPending(t, p, "2026-09-01", "09:00-12:00"))
	}

	for _, a := range appts {
		if _, err := f.svc.Confirm(ctx, f.doctorActor, a.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}

	// Cancel the second, complete the first, deny the fourth.
	if _, err := f.svc.Transition(ctx, patients[1], appts[1].ID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Transition(ctx, f.doctorActor, appts[0].ID, StatusInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Transition(ctx, f.doctorActor, appts[0].ID, StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.Transition(ctx, patients[3], appts[3].ID, StatusRejected); err != nil {
		t.Fatalf("deny: %v", err)
	}

	nums := f.activeQueueNumbers(appts[0].Partition())
	if len(nums) != 2 {
		t.Fatalf("active count: got %d, want 2", len(nums))
	}
	assertDense(t, nums)
}
