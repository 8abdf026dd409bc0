package enrich_test

import (
	"context"
	"strings"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/xraph/steward/playbook"
	"github.com/xraph/steward/playbook/enrich"
)

func makePod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "app"}},
		},
	}
}

func TestPodBash(t *testing.T) {
	cs := fake.NewClientset(makePod("web-1"))

	var gotPod, gotContainer string
	var gotCmd []string
	e := enrich.New(cs, nil, enrich.WithExecFunc(
		func(_ context.Context, _, pod, container string, command []string) (string, error) {
			gotPod, gotContainer, gotCmd = pod, container, command
			return "Filesystem Use%\n/dev/sda1 90%\n", nil
		},
	))

	run := playbook.NewRun("probe-disk", "nightly", nil)
	if err := e.PodBash(context.Background(), run, "default", "web-1", "df -h"); err != nil {
		t.Fatalf("PodBash: %v", err)
	}

	if gotPod != "web-1" || gotContainer != "app" {
		t.Errorf("exec target = %s/%s, want web-1/app", gotPod, gotContainer)
	}
	if len(gotCmd) != 3 || gotCmd[2] != "df -h" {
		t.Errorf("exec command = %v", gotCmd)
	}

	findings := run.Findings()
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	f := findings[0]
	if f.Title != "Pod bash command - web-1" {
		t.Errorf("title = %q", f.Title)
	}
	if len(f.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(f.Blocks))
	}
	if !strings.Contains(f.Blocks[0].Text, "df -h") {
		t.Errorf("block 0 = %q, want command echo", f.Blocks[0].Text)
	}
	if !strings.Contains(f.Blocks[1].Text, "/dev/sda1") {
		t.Errorf("block 1 = %q, want command output", f.Blocks[1].Text)
	}
}

func TestPodBashMissingPod(t *testing.T) {
	cs := fake.NewClientset()
	e := enrich.New(cs, nil, enrich.WithExecFunc(
		func(_ context.Context, _, _, _ string, _ []string) (string, error) {
			t.Fatal("exec must not be called for a missing pod")
			return "", nil
		},
	))

	run := playbook.NewRun("probe-disk", "", nil)
	if err := e.PodBash(context.Background(), run, "default", "ghost", "true"); err != nil {
		t.Fatalf("PodBash: %v", err)
	}

	findings := run.Findings()
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	if !strings.Contains(findings[0].Blocks[0].Text, "not found") {
		t.Errorf("block = %q, want not-found message", findings[0].Blocks[0].Text)
	}
}

func TestNodeBash(t *testing.T) {
	cs := fake.NewClientset(&corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: "node-1"},
	})

	e := enrich.New(cs, nil,
		enrich.WithPollInterval(5*time.Millisecond),
		enrich.WithDebugImage("busybox:1.36"),
	)

	// The fake clientset never runs the pod; complete it from a
	// background goroutine the way the kubelet would.
	go func() {
		ctx := context.Background()
		for {
			pods, err := cs.CoreV1().Pods("default").List(ctx, metav1.ListOptions{})
			if err == nil {
				for i := range pods.Items {
					p := &pods.Items[i]
					if strings.HasPrefix(p.Name, "steward-nodebash-") && p.Status.Phase == "" {
						p.Status.Phase = corev1.PodSucceeded
						_, _ = cs.CoreV1().Pods("default").UpdateStatus(ctx, p, metav1.UpdateOptions{})
						return
					}
				}
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	run := playbook.NewRun("probe-node", "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.NodeBash(ctx, run, "default", "node-1", "uptime"); err != nil {
		t.Fatalf("NodeBash: %v", err)
	}

	findings := run.Findings()
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	if findings[0].Title != "Node bash command - node-1" {
		t.Errorf("title = %q", findings[0].Title)
	}

	// The debug pod must be cleaned up.
	pods, err := cs.CoreV1().Pods("default").List(context.Background(), metav1.ListOptions{})
	if err != nil {
		t.Fatalf("list pods: %v", err)
	}
	if len(pods.Items) != 0 {
		t.Errorf("pods remaining = %d, want 0", len(pods.Items))
	}
}

func TestNodeBashMissingNode(t *testing.T) {
	cs := fake.NewClientset()
	e := enrich.New(cs, nil)

	run := playbook.NewRun("probe-node", "", nil)
	if err := e.NodeBash(context.Background(), run, "default", "ghost", "uptime"); err != nil {
		t.Fatalf("NodeBash: %v", err)
	}

	findings := run.Findings()
	if len(findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(findings))
	}
	if !strings.Contains(findings[0].Blocks[0].Text, "Node ghost not found") {
		t.Errorf("block = %q", findings[0].Blocks[0].Text)
	}
}
