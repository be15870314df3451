// Package executor runs the resolved template trace of an application
// task against its execution targets, records the message stream, and
// drives the restart state machine.
package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/config"
	"github.com/ocilxc/lxc-deployer/internal/database"
	"github.com/ocilxc/lxc-deployer/internal/graph"
	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/store"
	"github.com/ocilxc/lxc-deployer/internal/target"
)

// maskedValue is the placeholder clients see in place of secure values.
const maskedValue = "******"

// submission is the persisted install request, kept so restarts can
// re-resolve the exact same trace.
type submission struct {
	App    string                  `json:"app"`
	Task   string                  `json:"task"`
	Params []models.ParameterValue `json:"params,omitempty"`
	Addons []string                `json:"addons,omitempty"`
	// Outputs accumulates command-produced values as steps succeed, so a
	// restart from a later step still sees them.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// Executor owns execution groups: one run at a time per (application,
// task), an append-only message stream per group, and restart handles.
type Executor struct {
	db      *database.DB
	cfg     *config.Config
	store   *store.Store
	builder *graph.Builder
	log     *MessageLog
	hub     *Hub

	mu      sync.Mutex
	running map[string]bool

	// parseTarget is swappable in tests.
	parseTarget func(spec, vmid string) (target.Target, error)
}

func New(db *database.DB, cfg *config.Config, st *store.Store, builder *graph.Builder) *Executor {
	e := &Executor{
		db:      db,
		cfg:     cfg,
		store:   st,
		builder: builder,
		log:     NewMessageLog(db),
		hub:     NewHub(),
		running: make(map[string]bool),
	}
	e.parseTarget = func(spec, vmid string) (target.Target, error) {
		return target.Parse(spec, vmid, cfg.Hosts)
	}
	return e
}

// Log exposes the message store for polling handlers.
func (e *Executor) Log() *MessageLog { return e.log }

// Subscribe attaches a live message stream for one group.
func (e *Executor) Subscribe(app, task string) chan models.ExecuteMessage {
	return e.hub.Subscribe(app, task)
}

func (e *Executor) Unsubscribe(app, task string, ch chan models.ExecuteMessage) {
	e.hub.Unsubscribe(app, task, ch)
}

// Install resolves the trace for a submitted configuration, refuses to
// start while required parameters are missing, and launches the run
// asynchronously. The returned keys drive later restarts.
func (e *Executor) Install(app *models.Application, req *models.InstallRequest) (*models.InstallResponse, error) {
	task := req.Task
	if task == "" {
		task = models.TaskInstallation
	}

	params := submittedParams(req.Params, req.ChangedParams)

	res, err := e.resolve(app, task, params, req.Addons)
	if err != nil {
		return nil, err
	}
	if len(res.MissingRequired) > 0 {
		return nil, apperr.Validation("missing required parameters: %s", strings.Join(res.MissingRequired, ", "))
	}

	if err := e.acquire(app.ID, task); err != nil {
		return nil, err
	}

	restartKey := uuid.New().String()
	vmInstallKey := uuid.New().String()

	sub := &submission{App: app.ID, Task: task, Params: params, Addons: req.Addons}
	if err := e.saveKeys(restartKey, vmInstallKey, sub); err != nil {
		e.release(app.ID, task)
		return nil, err
	}
	if err := e.log.BeginGroup(app.ID, task, restartKey, vmInstallKey); err != nil {
		e.release(app.ID, task)
		return nil, err
	}

	log.Printf("[Executor] Starting %s/%s (%d steps)", app.ID, task, len(res.Steps))
	go e.run(sub, restartKey, 0)

	return &models.InstallResponse{Success: true, RestartKey: restartKey, VMInstallKey: vmInstallKey}, nil
}

// Restart retries a failed run from its last failed step. Only the
// group's own message stream is reset; every other group is untouched.
func (e *Executor) Restart(restartKey string) error {
	sub, failedStep, vmInstallKey, err := e.loadByRestartKey(restartKey)
	if err != nil {
		return err
	}

	if err := e.acquire(sub.App, sub.Task); err != nil {
		return err
	}
	if err := e.log.BeginGroup(sub.App, sub.Task, restartKey, vmInstallKey); err != nil {
		e.release(sub.App, sub.Task)
		return err
	}

	start := failedStep
	if start < 0 {
		start = 0
	}
	log.Printf("[Executor] Restarting %s/%s from step %d", sub.App, sub.Task, start)
	go e.run(sub, restartKey, start)
	return nil
}

// Reinstall tears the partially created container down and reruns the
// whole trace under fresh keys. The old keys stop working.
func (e *Executor) Reinstall(vmInstallKey string) (*models.ReinstallResponse, error) {
	sub, restartKey, err := e.loadByVMInstallKey(vmInstallKey)
	if err != nil {
		return nil, err
	}

	if err := e.acquire(sub.App, sub.Task); err != nil {
		return nil, err
	}

	e.teardown(sub)

	if _, err := e.db.Exec("DELETE FROM install_keys WHERE restart_key = ?", restartKey); err != nil {
		e.release(sub.App, sub.Task)
		return nil, err
	}

	newRestartKey := uuid.New().String()
	newVMInstallKey := uuid.New().String()
	if err := e.saveKeys(newRestartKey, newVMInstallKey, sub); err != nil {
		e.release(sub.App, sub.Task)
		return nil, err
	}
	if err := e.log.BeginGroup(sub.App, sub.Task, newRestartKey, newVMInstallKey); err != nil {
		e.release(sub.App, sub.Task)
		return nil, err
	}

	log.Printf("[Executor] Reinstalling %s/%s from scratch", sub.App, sub.Task)
	go e.run(sub, newRestartKey, 0)
	return &models.ReinstallResponse{VMInstallKey: newVMInstallKey}, nil
}

func (e *Executor) resolve(app *models.Application, task string, params []models.ParameterValue, addons []string) (*graph.Result, error) {
	return e.builder.Resolve(context.Background(), &graph.Request{
		App:     app,
		Task:    task,
		Context: graph.ContextInstall,
		Values:  params,
		Addons:  addons,
		Flat:    true,
	})
}

func (e *Executor) acquire(app, task string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := groupKey(app, task)
	if e.running[key] {
		return apperr.Conflict("execution already running for %s/%s", app, task)
	}
	e.running[key] = true
	return nil
}

func (e *Executor) release(app, task string) {
	e.mu.Lock()
	delete(e.running, groupKey(app, task))
	e.mu.Unlock()
}

func (e *Executor) saveKeys(restartKey, vmInstallKey string, sub *submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	_, err = e.db.Exec(`
		INSERT INTO install_keys (restart_key, vm_install_key, application, task, submission)
		VALUES (?, ?, ?, ?, ?)`,
		restartKey, vmInstallKey, sub.App, sub.Task, string(data),
	)
	return err
}

func (e *Executor) loadByRestartKey(restartKey string) (*submission, int, string, error) {
	var raw, vmInstallKey string
	var failedStep int
	err := e.db.QueryRow(
		"SELECT submission, failed_step, vm_install_key FROM install_keys WHERE restart_key = ?",
		restartKey,
	).Scan(&raw, &failedStep, &vmInstallKey)
	if err == sql.ErrNoRows {
		return nil, 0, "", apperr.NotFound("unknown restart key")
	}
	if err != nil {
		return nil, 0, "", err
	}
	var sub submission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, 0, "", err
	}
	return &sub, failedStep, vmInstallKey, nil
}

func (e *Executor) loadByVMInstallKey(vmInstallKey string) (*submission, string, error) {
	var raw, restartKey string
	err := e.db.QueryRow(
		"SELECT submission, restart_key FROM install_keys WHERE vm_install_key = ?",
		vmInstallKey,
	).Scan(&raw, &restartKey)
	if err == sql.ErrNoRows {
		return nil, "", apperr.NotFound("unknown install key")
	}
	if err != nil {
		return nil, "", err
	}
	var sub submission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, "", err
	}
	return &sub, restartKey, nil
}

func (e *Executor) setFailedStep(restartKey string, step int) {
	if _, err := e.db.Exec("UPDATE install_keys SET failed_step = ? WHERE restart_key = ?", step, restartKey); err != nil {
		log.Printf("[Executor] Recording failed step: %v", err)
	}
}

// run executes the trace from startStep on. It re-resolves from the
// stored submission so restarts see the same trace the install did.
func (e *Executor) run(sub *submission, restartKey string, startStep int) {
	defer e.release(sub.App, sub.Task)

	app, err := e.store.Application(sub.App)
	if err != nil {
		e.fail(sub, restartKey, -1, "load application", err)
		return
	}
	res, err := e.resolve(app, sub.Task, sub.Params, sub.Addons)
	if err != nil {
		e.fail(sub, restartKey, -1, "resolve trace", err)
		return
	}

	values := res.Effective
	for k, v := range sub.Outputs {
		values[k] = v
	}
	masked := maskedValues(values, res.Parameters)

	for stepIdx, step := range res.Steps {
		if stepIdx < startStep {
			// Earlier steps already ran; recorded outputs were overlaid
			// above, declared defaults fill any remaining gaps.
			e.replayOutputs(step.Template, values)
			continue
		}

		if step.Template.ExecuteOn == "lxc" {
			if err := e.waitForContainer(valueString(values["vm_id"])); err != nil {
				e.fail(sub, restartKey, stepIdx, step.Trace.Name, err)
				return
			}
		}

		for _, cmd := range step.Template.Commands {
			produced, err := e.runCommand(sub, app.ID, step, cmd, values, masked)
			if err != nil {
				e.fail(sub, restartKey, stepIdx, cmd.Name, err)
				return
			}
			if len(produced) > 0 {
				if sub.Outputs == nil {
					sub.Outputs = make(map[string]string)
				}
				for k, v := range produced {
					sub.Outputs[k] = v
				}
				e.persistOutputs(restartKey, sub)
			}
		}
	}

	e.finish(sub, restartKey)
}

// streamRecorder folds a running command's stdout lines into one partial
// message: the first line appends it, later lines rewrite it in place, and
// the command's final outcome replaces it under the same index.
type streamRecorder struct {
	e           *Executor
	app, task   string
	command     string
	commandText string
	max         int

	mu  sync.Mutex
	buf strings.Builder
	msg *models.ExecuteMessage
}

func (r *streamRecorder) Line(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf.WriteString(line)
	r.buf.WriteByte('\n')

	if r.msg == nil {
		m := &models.ExecuteMessage{
			Command:     r.command,
			CommandText: r.commandText,
			Result:      truncate(r.buf.String(), r.max),
			Partial:     true,
		}
		appended, err := r.e.log.Append(r.app, r.task, m)
		if err != nil {
			log.Printf("[Executor] Recording partial output: %v", err)
			return
		}
		r.msg = appended
	} else {
		r.msg.Result = truncate(r.buf.String(), r.max)
		if err := r.e.log.Replace(r.app, r.task, r.msg); err != nil {
			log.Printf("[Executor] Recording partial output: %v", err)
			return
		}
	}
	r.e.hub.Broadcast(r.app, r.task, *r.msg)
}

// finalize lands the command's definitive message, reusing the streamed
// partial's index when one exists.
func (r *streamRecorder) finalize(m *models.ExecuteMessage) (*models.ExecuteMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.msg == nil {
		return r.e.log.Append(r.app, r.task, m)
	}
	m.Index = r.msg.Index
	if err := r.e.log.Replace(r.app, r.task, m); err != nil {
		return nil, err
	}
	return m, nil
}

// abort finalizes a dangling partial message when the command never
// produced a Result; without one there is nothing to clean up.
func (r *streamRecorder) abort(errText string) {
	r.mu.Lock()
	dangling := r.msg != nil
	r.mu.Unlock()
	if !dangling {
		return
	}
	final, err := r.finalize(&models.ExecuteMessage{
		Command:     r.command,
		CommandText: r.commandText,
		Result:      truncate(r.buf.String(), r.max),
		Error:       errText,
		ExitCode:    -1,
	})
	if err != nil {
		return
	}
	r.e.hub.Broadcast(r.app, r.task, *final)
}

func (e *Executor) runCommand(sub *submission, appID string, step graph.Step, cmd models.Command, values map[string]any, masked map[string]any) (map[string]string, error) {
	body := cmd.Command
	if body == "" && cmd.Script != "" {
		script, err := e.store.Script(appID, cmd.Script)
		if err != nil {
			return nil, err
		}
		body = script
	}
	if cmd.Library != "" {
		library, err := e.store.Script(appID, cmd.Library)
		if err != nil {
			return nil, err
		}
		body = composeScript(library, body)
	}

	rendered := Render(body, values)
	display := Render(body, masked)

	tgt, err := e.parseTarget(step.Template.ExecuteOn, valueString(values["vm_id"]))
	if err != nil {
		return nil, err
	}

	timeout := e.cfg.Execution.CommandTimeout
	if timeout > e.cfg.Execution.MaxTimeout {
		timeout = e.cfg.Execution.MaxTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	max := e.cfg.Execution.MaxOutputSize
	stream := &streamRecorder{
		e:           e,
		app:         sub.App,
		task:        sub.Task,
		command:     cmd.Name,
		commandText: display,
		max:         max,
	}

	result, err := tgt.Run(ctx, rendered, stream.Line)
	if err != nil {
		runErr := fmt.Errorf("%s on %s: %w", cmd.Name, tgt.Describe(), err)
		stream.abort(runErr.Error())
		return nil, runErr
	}

	msg := &models.ExecuteMessage{
		Command:     cmd.Name,
		CommandText: display,
		Result:      truncate(result.Stdout, max),
		Stderr:      truncate(result.Stderr, max),
		ExitCode:    result.ExitCode,
	}
	if result.ExitCode != 0 {
		msg.Error = fmt.Sprintf("%s exited with code %d", cmd.Name, result.ExitCode)
	}
	appended, appendErr := stream.finalize(msg)
	if appendErr != nil {
		return nil, appendErr
	}
	e.hub.Broadcast(sub.App, sub.Task, *appended)

	if result.ExitCode != 0 {
		return nil, apperr.Execution("%s", msg.Error)
	}

	// Outputs printed by the command become values for later templates;
	// declared outputs the command stayed silent on fall back to their
	// defaults.
	produced := ParseOutputs(result.Stdout)
	captured := make(map[string]string)
	for _, out := range cmd.Outputs {
		if v, ok := produced[out.ID]; ok {
			values[out.ID] = v
			captured[out.ID] = v
		} else if _, ok := values[out.ID]; !ok && out.Default != nil {
			values[out.ID] = out.Default
		}
	}
	for _, prop := range cmd.Properties {
		if _, ok := values[prop.ID]; !ok {
			values[prop.ID] = prop.Value
		}
	}
	return captured, nil
}

func (e *Executor) persistOutputs(restartKey string, sub *submission) {
	data, err := json.Marshal(sub)
	if err != nil {
		return
	}
	if _, err := e.db.Exec("UPDATE install_keys SET submission = ? WHERE restart_key = ?", string(data), restartKey); err != nil {
		log.Printf("[Executor] Persisting outputs: %v", err)
	}
}

// replayOutputs restores the declared output defaults of an already-run
// step when restarting past it.
func (e *Executor) replayOutputs(tpl *models.Template, values map[string]any) {
	for _, cmd := range tpl.Commands {
		for _, out := range cmd.Outputs {
			if _, ok := values[out.ID]; !ok && out.Default != nil {
				values[out.ID] = out.Default
			}
		}
		for _, prop := range cmd.Properties {
			if _, ok := values[prop.ID]; !ok {
				values[prop.ID] = prop.Value
			}
		}
	}
}

// waitForContainer polls pct until the container reports running, bounded
// by the configured probe budget.
func (e *Executor) waitForContainer(vmid string) error {
	if vmid == "" || vmid == notDefined {
		return apperr.Execution("no container id available for lxc execution")
	}
	tgt, err := e.parseTarget("ve", "")
	if err != nil {
		return err
	}

	attempts := e.cfg.Execution.ProbeAttempts
	delay := e.cfg.Execution.GetProbeDelay()
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		res, err := tgt.Run(ctx, "pct status "+vmid, nil)
		cancel()
		if err == nil && res.ExitCode == 0 && strings.Contains(res.Stdout, "running") {
			return nil
		}
		time.Sleep(delay)
	}
	return apperr.Execution("container %s not running after %d probes", vmid, attempts)
}

// teardown destroys a partially created container, best effort.
func (e *Executor) teardown(sub *submission) {
	vmid := sub.Outputs["vm_id"]
	if vmid == "" {
		app, err := e.store.Application(sub.App)
		if err != nil {
			return
		}
		res, err := e.resolve(app, sub.Task, sub.Params, sub.Addons)
		if err != nil {
			return
		}
		vmid = valueString(res.Effective["vm_id"])
	}
	if vmid == "" || vmid == notDefined {
		return
	}

	tgt, err := e.parseTarget("ve", "")
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if _, err := tgt.Run(ctx, fmt.Sprintf("pct stop %s; pct destroy %s", vmid, vmid), nil); err != nil {
		log.Printf("[Executor] Teardown of container %s: %v", vmid, err)
	}
}

func (e *Executor) fail(sub *submission, restartKey string, step int, what string, err error) {
	log.Printf("[Executor] %s/%s failed at %q: %v", sub.App, sub.Task, what, err)
	e.setFailedStep(restartKey, step)

	msg := &models.ExecuteMessage{
		Command:  what,
		Error:    err.Error(),
		ExitCode: -1,
		Finished: true,
	}
	if appended, appendErr := e.log.Append(sub.App, sub.Task, msg); appendErr == nil {
		e.hub.Broadcast(sub.App, sub.Task, *appended)
	}
	if statusErr := e.log.SetStatus(sub.App, sub.Task, models.StatusFailed); statusErr != nil {
		log.Printf("[Executor] Updating group status: %v", statusErr)
	}
}

func (e *Executor) finish(sub *submission, restartKey string) {
	e.setFailedStep(restartKey, -1)
	msg := &models.ExecuteMessage{
		Command:  "done",
		Result:   "All templates completed",
		Finished: true,
	}
	if appended, err := e.log.Append(sub.App, sub.Task, msg); err == nil {
		e.hub.Broadcast(sub.App, sub.Task, *appended)
	}
	if err := e.log.SetStatus(sub.App, sub.Task, models.StatusSucceeded); err != nil {
		log.Printf("[Executor] Updating group status: %v", err)
	}
	log.Printf("[Executor] %s/%s finished", sub.App, sub.Task)
}

// submittedParams drops masked secure values the client echoed back
// without changing them. Clients see secure parameters as "******"; only
// values named in changed carry real input, so an unchanged mask must not
// become the literal value. Without a changed list every value is taken
// as submitted.
func submittedParams(params []models.ParameterValue, changed []string) []models.ParameterValue {
	if len(changed) == 0 {
		return params
	}
	changedSet := make(map[string]bool, len(changed))
	for _, id := range changed {
		changedSet[id] = true
	}

	kept := make([]models.ParameterValue, 0, len(params))
	for _, p := range params {
		if !changedSet[p.ID] && p.Value == maskedValue {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// maskedValues replaces secure parameter values for display surfaces.
func maskedValues(values map[string]any, params []models.Parameter) map[string]any {
	masked := make(map[string]any, len(values))
	for k, v := range values {
		masked[k] = v
	}
	for _, p := range params {
		if p.Secure {
			if _, ok := masked[p.ID]; ok {
				masked[p.ID] = maskedValue
			}
		}
	}
	return masked
}
