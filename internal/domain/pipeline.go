package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrEmptyPipeline         = errors.New("pipeline must have at least one stage")
	ErrDuplicateStageName    = errors.New("stage name already exists")
	ErrInvalidStageName      = errors.New("stage name must not be empty")
	ErrStageNotFound         = errors.New("stage not found")
	ErrStageIndexOutOfRange  = errors.New("stage index out of range")
	ErrAtLastStage           = errors.New("already at the last stage")
	ErrAtFirstStage          = errors.New("already at the first stage")
	ErrStageTasksIncomplete  = errors.New("stage has incomplete tasks")
	ErrCannotDeleteLastStage = errors.New("cannot delete the last remaining stage")
	ErrStageHasContent       = errors.New("stage has tasks or notes; confirmation required")
	ErrTaskNotFound          = errors.New("task not found")
	ErrUnknownStageEdit      = errors.New("unknown stage edit operation")
	ErrStageMoved            = errors.New("pipeline moved since the advance was requested")
)

// TaskStatusComplete is the status value that marks a task done
const TaskStatusComplete = "complete"

// StageTask is a checklist item within a stage
type StageTask struct {
	Name   string `json:"name"`
	Done   bool   `json:"done"`
	Status string `json:"status,omitempty"`
}

// IsComplete reports whether the task counts as done
func (t StageTask) IsComplete() bool {
	return t.Done || t.Status == TaskStatusComplete
}

// StageContent is the recorded work for one stage
type StageContent struct {
	Notes     []string    `json:"notes"`
	Tasks     []StageTask `json:"tasks"`
	Completed bool        `json:"completed"`
}

// IsEmpty reports whether the stage holds no tasks or notes
func (c StageContent) IsEmpty() bool {
	return len(c.Notes) == 0 && len(c.Tasks) == 0
}

// StageBlockedError is returned when advancement is refused because of open tasks
type StageBlockedError struct {
	Stage           string
	IncompleteTasks []string
}

func (e *StageBlockedError) Error() string {
	return fmt.Sprintf("stage %q has %d incomplete task(s): %s",
		e.Stage, len(e.IncompleteTasks), strings.Join(e.IncompleteTasks, ", "))
}

func (e *StageBlockedError) Unwrap() error {
	return ErrStageTasksIncomplete
}

// StagePipeline is the ordered stage list held on a customer or project.
// CurrentStage is always a member of Stages.
type StagePipeline struct {
	Stages       []string                `gorm:"type:jsonb;serializer:json;not null"`
	CurrentStage string                  `gorm:"type:varchar(100);not null;column:current_stage"`
	StageData    map[string]StageContent `gorm:"type:jsonb;serializer:json;column:stage_data"`
}

// NewStagePipeline builds a pipeline positioned at the first stage
func NewStagePipeline(stages []string) (StagePipeline, error) {
	cleaned := make([]string, 0, len(stages))
	for _, s := range stages {
		name := strings.TrimSpace(s)
		if name == "" {
			return StagePipeline{}, ErrInvalidStageName
		}
		if slices.Contains(cleaned, name) {
			return StagePipeline{}, fmt.Errorf("%w: %s", ErrDuplicateStageName, name)
		}
		cleaned = append(cleaned, name)
	}
	if len(cleaned) == 0 {
		return StagePipeline{}, ErrEmptyPipeline
	}
	return StagePipeline{
		Stages:       cleaned,
		CurrentStage: cleaned[0],
		StageData:    map[string]StageContent{},
	}, nil
}

// Validate checks the pipeline invariants
func (p *StagePipeline) Validate() error {
	if len(p.Stages) == 0 {
		return ErrEmptyPipeline
	}
	seen := make(map[string]struct{}, len(p.Stages))
	for _, s := range p.Stages {
		if strings.TrimSpace(s) == "" {
			return ErrInvalidStageName
		}
		if _, ok := seen[s]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateStageName, s)
		}
		seen[s] = struct{}{}
	}
	if p.CurrentIndex() < 0 {
		return fmt.Errorf("%w: current stage %q", ErrStageNotFound, p.CurrentStage)
	}
	return nil
}

// CurrentIndex returns the index of the current stage, or -1
func (p *StagePipeline) CurrentIndex() int {
	return slices.Index(p.Stages, p.CurrentStage)
}

// IsLastStage reports whether the pipeline is positioned at its final stage
func (p *StagePipeline) IsLastStage() bool {
	return p.CurrentIndex() == len(p.Stages)-1
}

// HasStage reports whether name is one of the stages
func (p *StagePipeline) HasStage(name string) bool {
	return slices.Contains(p.Stages, name)
}

// NextStage returns the stage after the current one
func (p *StagePipeline) NextStage() (string, error) {
	idx := p.CurrentIndex()
	if idx < 0 {
		return "", ErrStageNotFound
	}
	if idx >= len(p.Stages)-1 {
		return "", ErrAtLastStage
	}
	return p.Stages[idx+1], nil
}

// Content returns the recorded work for a stage
func (p *StagePipeline) Content(stage string) StageContent {
	if p.StageData == nil {
		return StageContent{}
	}
	return p.StageData[stage]
}

func (p *StagePipeline) setContent(stage string, c StageContent) {
	if p.StageData == nil {
		p.StageData = map[string]StageContent{}
	}
	p.StageData[stage] = c
}

// IncompleteTasks lists the names of open tasks in the current stage
func (p *StagePipeline) IncompleteTasks() []string {
	var open []string
	for _, t := range p.Content(p.CurrentStage).Tasks {
		if !t.IsComplete() {
			open = append(open, t.Name)
		}
	}
	return open
}

// CheckAdvance reports why the pipeline cannot move forward, if it cannot.
// Approval gating is checked by the caller.
func (p *StagePipeline) CheckAdvance() error {
	if _, err := p.NextStage(); err != nil {
		return err
	}
	if open := p.IncompleteTasks(); len(open) > 0 {
		return &StageBlockedError{Stage: p.CurrentStage, IncompleteTasks: open}
	}
	return nil
}

// Advance moves to the next stage and marks the current one completed.
// The pipeline is unchanged on error.
func (p *StagePipeline) Advance() (from, to string, err error) {
	if err := p.CheckAdvance(); err != nil {
		return "", "", err
	}
	from = p.CurrentStage
	to, _ = p.NextStage()

	c := p.Content(from)
	c.Completed = true
	p.setContent(from, c)
	p.CurrentStage = to
	return from, to, nil
}

// GoBack moves to the previous stage without any gate
func (p *StagePipeline) GoBack() (from, to string, err error) {
	idx := p.CurrentIndex()
	if idx < 0 {
		return "", "", ErrStageNotFound
	}
	if idx == 0 {
		return "", "", ErrAtFirstStage
	}
	from = p.CurrentStage
	p.CurrentStage = p.Stages[idx-1]
	return from, p.CurrentStage, nil
}

// Select jumps directly to the named stage
func (p *StagePipeline) Select(name string) (from, to string, err error) {
	if !p.HasStage(name) {
		return "", "", fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}
	from = p.CurrentStage
	p.CurrentStage = name
	return from, name, nil
}

// ApplyApproved moves from current to the approved next stage, marking the
// stage being left completed. Tasks are not re-checked. The pipeline must
// still sit at current and next must directly follow it.
func (p *StagePipeline) ApplyApproved(current, next string) (from string, err error) {
	if !p.HasStage(next) {
		return "", fmt.Errorf("%w: %s", ErrStageNotFound, next)
	}
	if p.CurrentStage != current {
		return "", fmt.Errorf("%w: at %q, requested from %q", ErrStageMoved, p.CurrentStage, current)
	}
	if idx := p.CurrentIndex(); idx < 0 || slices.Index(p.Stages, next) != idx+1 {
		return "", fmt.Errorf("%w: %q does not follow %q", ErrStageMoved, next, current)
	}
	from = p.CurrentStage
	if p.HasStage(from) {
		c := p.Content(from)
		c.Completed = true
		p.setContent(from, c)
	}
	p.CurrentStage = next
	return from, nil
}

// AddNote appends a note to a stage
func (p *StagePipeline) AddNote(stage, note string) error {
	if !p.HasStage(stage) {
		return fmt.Errorf("%w: %s", ErrStageNotFound, stage)
	}
	c := p.Content(stage)
	c.Notes = append(c.Notes, note)
	p.setContent(stage, c)
	return nil
}

// RemoveNote deletes the note at index i of a stage
func (p *StagePipeline) RemoveNote(stage string, i int) error {
	if !p.HasStage(stage) {
		return fmt.Errorf("%w: %s", ErrStageNotFound, stage)
	}
	c := p.Content(stage)
	if i < 0 || i >= len(c.Notes) {
		return ErrStageIndexOutOfRange
	}
	c.Notes = slices.Delete(slices.Clone(c.Notes), i, i+1)
	p.setContent(stage, c)
	return nil
}

// AddTask appends an open task to a stage
func (p *StagePipeline) AddTask(stage, name string) error {
	if !p.HasStage(stage) {
		return fmt.Errorf("%w: %s", ErrStageNotFound, stage)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidStageName
	}
	c := p.Content(stage)
	c.Tasks = append(c.Tasks, StageTask{Name: name})
	p.setContent(stage, c)
	return nil
}

// SetTaskDone marks the first task with the given name done or open
func (p *StagePipeline) SetTaskDone(stage, name string, done bool) error {
	if !p.HasStage(stage) {
		return fmt.Errorf("%w: %s", ErrStageNotFound, stage)
	}
	c := p.Content(stage)
	tasks := slices.Clone(c.Tasks)
	for i := range tasks {
		if tasks[i].Name == name {
			tasks[i].Done = done
			if done {
				tasks[i].Status = TaskStatusComplete
			} else {
				tasks[i].Status = ""
			}
			c.Tasks = tasks
			p.setContent(stage, c)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
}

// ClearContent empties every stage's tasks and notes, keeps the stage names
// and moves back to the first stage.
func (p *StagePipeline) ClearContent() {
	p.StageData = map[string]StageContent{}
	if len(p.Stages) > 0 {
		p.CurrentStage = p.Stages[0]
	}
}

// Edit opens a working copy for structural changes
func (p *StagePipeline) Edit() *StageEditor {
	slots := make([]stageSlot, len(p.Stages))
	for i, s := range p.Stages {
		slots[i] = stageSlot{name: s, origin: s}
	}
	return &StageEditor{source: p, slots: slots}
}

// Stage edit operation names
const (
	StageEditAdd       = "add"
	StageEditRename    = "rename"
	StageEditMoveLeft  = "moveLeft"
	StageEditMoveRight = "moveRight"
	StageEditDelete    = "delete"
)

// StageEditOp is one structural change applied to a working copy
type StageEditOp struct {
	Op      string
	Index   int
	Name    string
	Confirm bool
}

type stageSlot struct {
	name   string
	origin string // empty for stages added in this session
}

// StageEditor holds a working copy of a pipeline's stage list.
// Nothing is visible on the source pipeline until Save.
type StageEditor struct {
	source *StagePipeline
	slots  []stageSlot
}

// Stages returns the working copy's stage names
func (e *StageEditor) Stages() []string {
	names := make([]string, len(e.slots))
	for i, s := range e.slots {
		names[i] = s.name
	}
	return names
}

func (e *StageEditor) indexOf(name string) int {
	for i, s := range e.slots {
		if s.name == name {
			return i
		}
	}
	return -1
}

func (e *StageEditor) checkIndex(i int) error {
	if i < 0 || i >= len(e.slots) {
		return ErrStageIndexOutOfRange
	}
	return nil
}

// AddStage appends a new empty stage
func (e *StageEditor) AddStage(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidStageName
	}
	if e.indexOf(name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateStageName, name)
	}
	e.slots = append(e.slots, stageSlot{name: name})
	return nil
}

// RenameStage renames the stage at i. A name colliding with another stage is ignored.
func (e *StageEditor) RenameStage(i int, name string) error {
	if err := e.checkIndex(i); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidStageName
	}
	if e.indexOf(name) >= 0 {
		return nil
	}
	e.slots[i].name = name
	return nil
}

// MoveLeft swaps the stage at i with its left neighbour
func (e *StageEditor) MoveLeft(i int) error {
	if err := e.checkIndex(i); err != nil {
		return err
	}
	if i == 0 {
		return nil
	}
	e.slots[i-1], e.slots[i] = e.slots[i], e.slots[i-1]
	return nil
}

// MoveRight swaps the stage at i with its right neighbour
func (e *StageEditor) MoveRight(i int) error {
	if err := e.checkIndex(i); err != nil {
		return err
	}
	if i == len(e.slots)-1 {
		return nil
	}
	e.slots[i], e.slots[i+1] = e.slots[i+1], e.slots[i]
	return nil
}

// DeleteStageAt removes the stage at i. Stages holding tasks or notes need confirm.
func (e *StageEditor) DeleteStageAt(i int, confirm bool) error {
	if err := e.checkIndex(i); err != nil {
		return err
	}
	if len(e.slots) == 1 {
		return ErrCannotDeleteLastStage
	}
	if origin := e.slots[i].origin; origin != "" && !confirm {
		if !e.source.Content(origin).IsEmpty() {
			return fmt.Errorf("%w: %s", ErrStageHasContent, e.slots[i].name)
		}
	}
	e.slots = slices.Delete(e.slots, i, i+1)
	return nil
}

// Apply runs a single edit operation
func (e *StageEditor) Apply(op StageEditOp) error {
	switch op.Op {
	case StageEditAdd:
		return e.AddStage(op.Name)
	case StageEditRename:
		return e.RenameStage(op.Index, op.Name)
	case StageEditMoveLeft:
		return e.MoveLeft(op.Index)
	case StageEditMoveRight:
		return e.MoveRight(op.Index)
	case StageEditDelete:
		return e.DeleteStageAt(op.Index, op.Confirm)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStageEdit, op.Op)
	}
}

// Save builds the edited pipeline. Content of removed stages is pruned and
// renamed stages keep theirs. The current stage becomes pinned if it
// survived the edit, otherwise the first stage.
func (e *StageEditor) Save(pinned string) (StagePipeline, error) {
	names := e.Stages()
	if len(names) == 0 {
		return StagePipeline{}, ErrEmptyPipeline
	}

	data := make(map[string]StageContent, len(e.slots))
	for _, s := range e.slots {
		if s.origin == "" {
			continue
		}
		if c, ok := e.source.StageData[s.origin]; ok {
			data[s.name] = c
		}
	}

	current := names[0]
	if pinned != "" && slices.Contains(names, pinned) {
		current = pinned
	}

	return StagePipeline{Stages: names, CurrentStage: current, StageData: data}, nil
}
