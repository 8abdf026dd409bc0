// Package enrich provides Kubernetes-backed playbook helpers that run
// shell commands inside the cluster and attach the output to the run
// as findings.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/xraph/steward/id"
	"github.com/xraph/steward/playbook"
)

// ExecFunc executes a command in a pod container and returns the
// combined stdout and stderr. The default implementation streams over
// SPDY; tests substitute a fake.
type ExecFunc func(ctx context.Context, namespace, pod, container string, command []string) (string, error)

// Option configures an Enricher.
type Option func(*Enricher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) { e.logger = l }
}

// WithDebugImage sets the image used for node debug pods.
// Default: "busybox:1.36".
func WithDebugImage(image string) Option {
	return func(e *Enricher) { e.image = image }
}

// WithExecFunc overrides how commands are executed in pods.
func WithExecFunc(fn ExecFunc) Option {
	return func(e *Enricher) { e.exec = fn }
}

// WithPollInterval sets how often node debug pods are polled for
// completion.
func WithPollInterval(d time.Duration) Option {
	return func(e *Enricher) { e.pollInterval = d }
}

// Enricher runs bash commands in pods and on nodes.
type Enricher struct {
	client       kubernetes.Interface
	restConfig   *rest.Config
	image        string
	exec         ExecFunc
	pollInterval time.Duration
	logger       *slog.Logger
}

// New creates an Enricher. The rest config may be nil when an ExecFunc
// is injected.
func New(client kubernetes.Interface, restConfig *rest.Config, opts ...Option) *Enricher {
	e := &Enricher{
		client:       client,
		restConfig:   restConfig,
		image:        "busybox:1.36",
		pollInterval: 500 * time.Millisecond,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.exec == nil {
		e.exec = e.spdyExec
	}
	return e
}

// PodBash runs a bash command in the named pod and records the output
// as a finding on the run. A missing pod produces a finding, not an
// error: the playbook still reports something useful.
func (e *Enricher) PodBash(ctx context.Context, run *playbook.Run, namespace, pod, command string) error {
	p, err := e.client.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			run.AddFinding(&playbook.Finding{
				Title:  fmt.Sprintf("Pod bash command - %s", pod),
				Blocks: []playbook.Block{playbook.MarkdownBlock(fmt.Sprintf("Pod %s/%s not found", namespace, pod))},
			})
			return nil
		}
		return fmt.Errorf("enrich: get pod %s/%s: %w", namespace, pod, err)
	}

	container := ""
	if len(p.Spec.Containers) > 0 {
		container = p.Spec.Containers[0].Name
	}

	out, err := e.exec(ctx, namespace, pod, container, []string{"/bin/sh", "-c", command})
	if err != nil {
		return fmt.Errorf("enrich: exec in pod %s/%s: %w", namespace, pod, err)
	}

	run.AddFinding(commandFinding(fmt.Sprintf("Pod bash command - %s", pod), command, out))
	return nil
}

// NodeBash runs a bash command on a node by creating a short-lived pod
// pinned to it, waiting for completion, collecting the logs and
// deleting the pod. The output is recorded as a finding on the run.
func (e *Enricher) NodeBash(ctx context.Context, run *playbook.Run, namespace, node, command string) error {
	if _, err := e.client.CoreV1().Nodes().Get(ctx, node, metav1.GetOptions{}); err != nil {
		if k8serrors.IsNotFound(err) {
			run.AddFinding(&playbook.Finding{
				Title:  fmt.Sprintf("Node bash command - %s", node),
				Blocks: []playbook.Block{playbook.MarkdownBlock(fmt.Sprintf("Node %s not found", node))},
			})
			return nil
		}
		return fmt.Errorf("enrich: get node %s: %w", node, err)
	}

	podName := "steward-nodebash-" + id.NewRunID().Suffix()
	debugPod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "steward"},
		},
		Spec: corev1.PodSpec{
			NodeName:      node,
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:    "bash",
				Image:   e.image,
				Command: []string{"/bin/sh", "-c", command},
			}},
		},
	}

	if _, err := e.client.CoreV1().Pods(namespace).Create(ctx, debugPod, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("enrich: create debug pod: %w", err)
	}
	defer func() {
		if err := e.client.CoreV1().Pods(namespace).Delete(context.Background(), podName, metav1.DeleteOptions{}); err != nil {
			e.logger.Warn("debug pod cleanup failed",
				slog.String("pod", podName),
				slog.String("error", err.Error()),
			)
		}
	}()

	if err := e.waitForCompletion(ctx, namespace, podName); err != nil {
		return err
	}

	raw, err := e.client.CoreV1().Pods(namespace).GetLogs(podName, &corev1.PodLogOptions{}).Do(ctx).Raw()
	if err != nil {
		return fmt.Errorf("enrich: read debug pod logs: %w", err)
	}

	run.AddFinding(commandFinding(fmt.Sprintf("Node bash command - %s", node), command, string(raw)))
	return nil
}

func (e *Enricher) waitForCompletion(ctx context.Context, namespace, pod string) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		p, err := e.client.CoreV1().Pods(namespace).Get(ctx, pod, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("enrich: poll debug pod: %w", err)
		}
		switch p.Status.Phase {
		case corev1.PodSucceeded, corev1.PodFailed:
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("enrich: wait for debug pod %s: %w", pod, ctx.Err())
		case <-ticker.C:
		}
	}
}

// spdyExec is the default ExecFunc: it streams the command through the
// pod exec subresource.
func (e *Enricher) spdyExec(ctx context.Context, namespace, pod, container string, command []string) (string, error) {
	req := e.client.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(e.restConfig, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("enrich: create executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	out := stdout.String()
	if stderr.Len() > 0 {
		out += stderr.String()
	}
	if err != nil {
		return out, fmt.Errorf("enrich: stream exec: %w", err)
	}
	return out, nil
}

func commandFinding(title, command, output string) *playbook.Finding {
	if output == "" {
		output = "(no output)"
	}
	return &playbook.Finding{
		Title: title,
		Blocks: []playbook.Block{
			playbook.MarkdownBlock(fmt.Sprintf("Command results for *%s:*", command)),
			playbook.MarkdownBlock(fmt.Sprintf("```\n%s\n```", output)),
		},
	}
}
