package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitcode-qr/internal/model"
)

func TestGymLifecycle(t *testing.T) {
	a := newApp(t)
	tok := a.signup(model.RoleOwner, "olga")

	rec, out := a.do(http.MethodGet, "/api/gym", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Gym not found", out["message"])

	rec, out = a.do(http.MethodPost, "/api/gym", tok, map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Gym name is required", out["message"])

	rec, out = a.do(http.MethodPost, "/api/gym", tok, map[string]string{"name": "Iron Works", "logo_url": "https://cdn.example.com/logo.png"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Iron Works", out["gym"].(map[string]any)["name"])

	rec, out = a.do(http.MethodPost, "/api/gym", tok, map[string]string{"name": "Second"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Owner already has a gym", out["message"])

	rec, out = a.do(http.MethodPut, "/api/gym", tok, map[string]string{"contact_info": "555-0100", "logo_url": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	gym := out["gym"].(map[string]any)
	assert.Equal(t, "Iron Works", gym["name"])
	assert.Equal(t, "555-0100", gym["contact_info"])
	assert.Nil(t, gym["logo_url"])

	rec, out = a.do(http.MethodPut, "/api/gym", tok, map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Gym name cannot be empty", out["message"])

	rec, _ = a.do(http.MethodDelete, "/api/gym", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = a.do(http.MethodDelete, "/api/gym", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMachineCRUD(t *testing.T) {
	a := newApp(t)
	tok, id := a.ownerWithMachine("olga", "Iron Works", "Bench Press")

	rec, out := a.do(http.MethodPost, "/api/gym/machines", tok, map[string]any{"name": "Rower"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, out["machine"].(map[string]any)["localized_content"])

	rec, out = a.do(http.MethodGet, "/api/gym/machines", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := out["machines"].([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "Bench Press", first["name"])
	assert.Len(t, first["localized_content"], 1)

	// name only: content kept
	rec, out = a.do(http.MethodPut, "/api/gym/machines/"+itoa(id), tok, map[string]any{"name": "Incline Bench"})
	require.Equal(t, http.StatusOK, rec.Code)
	m := out["machine"].(map[string]any)
	assert.Equal(t, "Incline Bench", m["name"])
	assert.Len(t, m["localized_content"], 1)

	// supplied content replaces the set
	rec, out = a.do(http.MethodPut, "/api/gym/machines/"+itoa(id), tok, map[string]any{
		"localized_content": []map[string]string{{"language_code": "DE"}, {"language_code": "fr"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	content := out["machine"].(map[string]any)["localized_content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "de", content[0].(map[string]any)["language_code"])

	rec, out = a.do(http.MethodPut, "/api/gym/machines/"+itoa(id), tok, map[string]any{
		"localized_content": []map[string]string{{"language_code": " "}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "language_code is required for localized content", out["message"])

	rec, out = a.do(http.MethodPut, "/api/gym/machines/abc", tok, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid machine id", out["message"])

	rec, _ = a.do(http.MethodDelete, "/api/gym/machines/"+itoa(id), tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, out = a.do(http.MethodDelete, "/api/gym/machines/"+itoa(id), tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Machine not found", out["message"])
}

func TestMachineOwnership(t *testing.T) {
	a := newApp(t)
	_, id := a.ownerWithMachine("olga", "Iron Works", "Bench Press")
	other, _ := a.ownerWithMachine("oscar", "Steel Hall", "Squat Rack")

	for _, req := range []struct{ method, path string }{
		{http.MethodPut, "/api/gym/machines/" + itoa(id)},
		{http.MethodDelete, "/api/gym/machines/" + itoa(id)},
		{http.MethodPost, "/api/qr/generate/" + itoa(id)},
		{http.MethodGet, "/api/qr/image/" + itoa(id)},
	} {
		rec, out := a.do(req.method, req.path, other, map[string]any{"name": "stolen"})
		assert.Equal(t, http.StatusNotFound, rec.Code, req.path)
		assert.Equal(t, "Machine not found", out["message"], req.path)
	}

	noGym := a.signup(model.RoleOwner, "nina")
	rec, out := a.do(http.MethodPost, "/api/gym/machines", noGym, map[string]any{"name": "Rower"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Gym not found", out["message"])
}
