package sync

import "testing"

func TestMergeBothMissing(t *testing.T) {
	result := Merge[item](nil, nil, maxValue)
	if result.NeedsLocalWrite || result.NeedsRemoteWrite {
		t.Fatalf("expected no writes for missing records, got %+v", result)
	}
}

func TestMergeLocalMissingAdoptsRemote(t *testing.T) {
	remote := item{ID: "r1", Value: 5, Synced: 100}

	result := Merge(nil, &remote, maxValue)

	if !result.NeedsLocalWrite {
		t.Fatalf("expected a local write when the record only exists remotely")
	}
	if result.NeedsRemoteWrite {
		t.Fatalf("unexpected remote write for a remote-only record")
	}
	if !result.Record.EqualPayload(remote) {
		t.Fatalf("expected remote payload, got %+v", result.Record)
	}
}

func TestMergeRemoteMissingKeepsLocal(t *testing.T) {
	tests := []struct {
		name     string
		pending  bool
		wantPush bool
	}{
		{name: "clean local stays put", pending: false, wantPush: false},
		{name: "pending local is pushed", pending: true, wantPush: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			local := item{ID: "l1", Value: 3, Pend: testCase.pending}

			result := Merge(&local, nil, maxValue)

			if result.NeedsLocalWrite {
				t.Fatalf("unexpected local write for a local-only record")
			}
			if result.NeedsRemoteWrite != testCase.wantPush {
				t.Fatalf("remote write = %v, want %v", result.NeedsRemoteWrite, testCase.wantPush)
			}
			if !result.Record.EqualPayload(local) {
				t.Fatalf("expected local payload, got %+v", result.Record)
			}
		})
	}
}

func TestMergePendingLocalWins(t *testing.T) {
	local := item{ID: "x", Value: 2, Pend: true}
	remote := item{ID: "x", Value: 9}

	result := Merge(&local, &remote, maxValue)

	if !result.NeedsRemoteWrite {
		t.Fatalf("expected a pending local record to be scheduled for push")
	}
	if result.Record.Value != 2 {
		t.Fatalf("pending local edit was overwritten: value = %d", result.Record.Value)
	}
}

func TestMergeCleanRecordsFieldLevel(t *testing.T) {
	local := item{ID: "x", Value: 2}
	remote := item{ID: "x", Value: 9}

	result := Merge(&local, &remote, maxValue)

	if result.Record.Value != 9 {
		t.Fatalf("field merger not applied: value = %d", result.Record.Value)
	}
	if !result.NeedsLocalWrite {
		t.Fatalf("expected a local write when the merge changed the local payload")
	}
	if result.NeedsRemoteWrite {
		t.Fatalf("merge result matches remote, no push expected")
	}
}

func TestMergeIdenticalCleanRecordsIsNoOp(t *testing.T) {
	local := item{ID: "x", Value: 4, Synced: 50}
	remote := item{ID: "x", Value: 4}

	result := Merge(&local, &remote, maxValue)

	if result.NeedsLocalWrite || result.NeedsRemoteWrite {
		t.Fatalf("expected a no-op for identical payloads, got %+v", result)
	}
}

func TestRemoteWinsReturnsRemote(t *testing.T) {
	local := item{ID: "x", Value: 1}
	remote := item{ID: "x", Value: 7}

	merged := RemoteWins(local, remote)

	if !merged.EqualPayload(remote) {
		t.Fatalf("expected remote payload, got %+v", merged)
	}
}
