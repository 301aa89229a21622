package stdfb

import (
	"testing"
	"time"
)

func TestTon_BasicOperation(t *testing.T) {
	var ton Ton
	pt := 100 * time.Millisecond
	dt := 10 * time.Millisecond

	for i := 0; i < 9; i++ {
		q, et := ton.Call(true, pt, dt)
		if q {
			t.Fatalf("cycle %d: expected Q false before PT elapsed, et=%v", i, et)
		}
	}
	q, et := ton.Call(true, pt, dt)
	if !q {
		t.Fatalf("expected Q true once ET reaches PT, et=%v", et)
	}
	if et != pt {
		t.Fatalf("expected ET capped at PT, got %v", et)
	}
}

func TestTon_Retrigger(t *testing.T) {
	var ton Ton
	pt := 100 * time.Millisecond
	dt := 10 * time.Millisecond

	ton.Call(true, pt, dt)
	ton.Call(true, pt, dt)
	if q, et := ton.Call(false, pt, dt); q || et != 0 {
		t.Fatalf("expected immediate reset on IN false, got q=%v et=%v", q, et)
	}
}

func TestTon_StaysOn(t *testing.T) {
	var ton Ton
	pt := 50 * time.Millisecond
	dt := 10 * time.Millisecond

	for i := 0; i < 5; i++ {
		ton.Call(true, pt, dt)
	}
	for i := 0; i < 3; i++ {
		if q, _ := ton.Call(true, pt, dt); !q {
			t.Fatalf("expected Q to stay true while IN remains true, cycle %d", i)
		}
	}
}

func TestTon_Reset(t *testing.T) {
	var ton Ton
	pt := 50 * time.Millisecond
	ton.Call(true, pt, pt)
	if !ton.Q() {
		t.Fatalf("expected Q true before reset")
	}
	ton.Reset()
	if ton.Q() || ton.ET() != 0 {
		t.Fatalf("expected reset state, got q=%v et=%v", ton.Q(), ton.ET())
	}
}

func TestTof_BasicOperation(t *testing.T) {
	var tof Tof
	pt := 100 * time.Millisecond
	dt := 10 * time.Millisecond

	if q, _ := tof.Call(true, pt, dt); !q {
		t.Fatalf("expected Q immediately true while IN true")
	}
	tof.Call(false, pt, dt) // falling edge, starts countdown
	for i := 0; i < 8; i++ {
		if q, _ := tof.Call(false, pt, dt); !q {
			t.Fatalf("cycle %d: expected Q to stay true during delay", i)
		}
	}
	q, et := tof.Call(false, pt, dt)
	if q {
		t.Fatalf("expected Q false once delay elapsed, et=%v", et)
	}
}

func TestTof_RetriggerDuringDelay(t *testing.T) {
	var tof Tof
	pt := 100 * time.Millisecond
	dt := 10 * time.Millisecond

	tof.Call(true, pt, dt)
	tof.Call(false, pt, dt)
	tof.Call(false, pt, dt)
	if q, et := tof.Call(true, pt, dt); !q || et != 0 {
		t.Fatalf("expected retrigger to reset ET and hold Q true, got q=%v et=%v", q, et)
	}
}

func TestTof_StartsOff(t *testing.T) {
	var tof Tof
	if q, _ := tof.Call(false, 10*time.Millisecond, time.Millisecond); q {
		t.Fatalf("expected Q false with IN never having been true")
	}
}

func TestTof_Reset(t *testing.T) {
	var tof Tof
	tof.Call(true, 50*time.Millisecond, time.Millisecond)
	tof.Reset()
	if tof.Q() || tof.ET() != 0 {
		t.Fatalf("expected reset state, got q=%v et=%v", tof.Q(), tof.ET())
	}
}

func TestTp_BasicPulse(t *testing.T) {
	var tp Tp
	pt := 50 * time.Millisecond
	dt := 10 * time.Millisecond

	q, et := tp.Call(true, pt, dt)
	if !q || et != dt {
		t.Fatalf("expected pulse to start immediately, q=%v et=%v", q, et)
	}
	for i := 0; i < 3; i++ {
		if q, _ := tp.Call(true, pt, dt); !q {
			t.Fatalf("cycle %d: expected pulse to continue", i)
		}
	}
	q, et = tp.Call(true, pt, dt)
	if q {
		t.Fatalf("expected pulse to end once PT elapsed, et=%v", et)
	}
	if et != 0 {
		t.Fatalf("expected ET to reset to 0 after pulse completes, got %v", et)
	}
}

func TestTp_IgnoresInputDuringPulse(t *testing.T) {
	var tp Tp
	pt := 50 * time.Millisecond
	dt := 10 * time.Millisecond

	tp.Call(true, pt, dt)
	tp.Call(false, pt, dt) // IN change mid-pulse must be ignored
	if q, _ := tp.Call(false, pt, dt); !q {
		t.Fatalf("expected pulse to keep running despite IN dropping")
	}
}

func TestTp_NoRetriggerDuringPulse(t *testing.T) {
	var tp Tp
	pt := 50 * time.Millisecond
	dt := 10 * time.Millisecond

	tp.Call(true, pt, dt)
	tp.Call(true, pt, dt)
	q, et := tp.Call(true, pt, dt)
	if !q {
		t.Fatalf("expected pulse still running")
	}
	if et != 3*dt {
		t.Fatalf("expected ET to keep accumulating from the original edge, got %v", et)
	}
}

func TestTp_NewPulseAfterComplete(t *testing.T) {
	var tp Tp
	pt := 20 * time.Millisecond
	dt := 10 * time.Millisecond

	tp.Call(true, pt, dt)
	tp.Call(true, pt, dt) // completes: et reaches pt
	if tp.Q() {
		t.Fatalf("expected pulse to have completed")
	}
	tp.Call(false, pt, dt)
	q, et := tp.Call(true, pt, dt)
	if !q || et != dt {
		t.Fatalf("expected a fresh pulse on the next rising edge, q=%v et=%v", q, et)
	}
}

func TestTp_Reset(t *testing.T) {
	var tp Tp
	tp.Call(true, 50*time.Millisecond, 10*time.Millisecond)
	tp.Reset()
	if tp.Q() || tp.ET() != 0 {
		t.Fatalf("expected reset state, got q=%v et=%v", tp.Q(), tp.ET())
	}
}
