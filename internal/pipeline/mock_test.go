package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/leadflow/pkg/calendar"
	"github.com/sells-group/leadflow/pkg/contentgen"
	"github.com/sells-group/leadflow/pkg/mailer"
	"github.com/sells-group/leadflow/pkg/telephony"
)

// --- Contentgen Mock ---

type mockGenClient struct {
	mock.Mock
}

func (m *mockGenClient) Generate(ctx context.Context, req contentgen.Request) (*contentgen.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contentgen.Response), args.Error(1)
}

// --- Telephony Mock ---

type mockPhoneClient struct {
	mock.Mock
}

func (m *mockPhoneClient) PlaceCall(ctx context.Context, req telephony.CallRequest) (*telephony.CallResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telephony.CallResult), args.Error(1)
}

// --- Calendar Mock ---

type mockCalendarClient struct {
	mock.Mock
}

func (m *mockCalendarClient) Schedule(ctx context.Context, req calendar.MeetingRequest) (*calendar.Meeting, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*calendar.Meeting), args.Error(1)
}

// --- Mailer Mock ---

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg mailer.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
