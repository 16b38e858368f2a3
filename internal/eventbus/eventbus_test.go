package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeCourseReceivesPublishedEnvelope(t *testing.T) {
	b := New()
	sub := b.SubscribeCourse("CS101")
	defer sub.Cancel()

	b.PublishCourse("CS101", Envelope{Type: SeatBooked, StudentID: "stu-1"})

	select {
	case env := <-sub.C:
		if env.Type != SeatBooked || env.CourseID != "CS101" {
			t.Errorf("unexpected envelope: %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published envelope")
	}
}

func TestPublishIsFIFOPerTopic(t *testing.T) {
	b := New()
	sub := b.SubscribeCourse("CS101")
	defer sub.Cancel()

	b.PublishCourse("CS101", Envelope{Type: Applied, StudentID: "a"})
	b.PublishCourse("CS101", Envelope{Type: SeatBooked, StudentID: "b"})
	b.PublishCourse("CS101", Envelope{Type: SeatReleased, StudentID: "c"})

	want := []EnvelopeType{Applied, SeatBooked, SeatReleased}
	for i, w := range want {
		select {
		case env := <-sub.C:
			if env.Type != w {
				t.Errorf("event %d: expected %s, got %s", i, w, env.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestSubscribersAreIsolatedByTopic(t *testing.T) {
	b := New()
	courseSub := b.SubscribeCourse("CS101")
	defer courseSub.Cancel()
	studentSub := b.SubscribeStudent("stu-1")
	defer studentSub.Cancel()

	b.PublishCourse("CS101", Envelope{Type: SeatBooked})

	select {
	case <-studentSub.C:
		t.Fatal("expected student subscription to not receive a course-topic publish")
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case env := <-courseSub.C:
		if env.Type != SeatBooked {
			t.Errorf("expected SeatBooked, got %s", env.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for course subscriber's event")
	}
}

func TestCancelStopsFurtherDelivery(t *testing.T) {
	b := New()
	sub := b.SubscribeCourse("CS101")
	sub.Cancel()

	// Publish after cancellation must not panic or block.
	b.PublishCourse("CS101", Envelope{Type: SeatBooked})

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Error("expected no further delivery after Cancel")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishBackpressureDisconnectsSlowSubscriber(t *testing.T) {
	b := New()
	sub := b.SubscribeCourse("CS101")
	defer sub.Cancel()

	// Fill the subscriber's bounded queue without draining it.
	for i := 0; i < subscriberQueueSize+1; i++ {
		b.PublishCourse("CS101", Envelope{Type: SeatBooked})
	}

	var sawDisconnect bool
	for i := 0; i < subscriberQueueSize+1; i++ {
		select {
		case env := <-sub.C:
			if env.Type == Disconnect {
				sawDisconnect = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out draining queue")
		}
	}
	if !sawDisconnect {
		t.Error("expected a DISCONNECT envelope once the subscriber's queue overflowed")
	}
}

func TestMultipleSubscribersOnSameTopicAllReceive(t *testing.T) {
	b := New()
	sub1 := b.SubscribeCourse("CS101")
	defer sub1.Cancel()
	sub2 := b.SubscribeCourse("CS101")
	defer sub2.Cancel()

	b.PublishCourse("CS101", Envelope{Type: WaitlistUpdated})

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case env := <-sub.C:
			if env.Type != WaitlistUpdated {
				t.Errorf("unexpected envelope type %s", env.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}
